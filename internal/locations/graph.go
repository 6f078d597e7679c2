// Package locations maintains the undirected, author-declared distance graph
// between story locations.
package locations

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/JamesPrial/timeline-core/internal/storage"
	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/logging"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

// Graph answers distance lookups. Only direct edges are consulted; there is no
// path-finding through intermediate locations.
type Graph struct {
	backend storage.Backend
	// fallback is returned when no edge is declared. Nil means unknown.
	fallback *float64
	logger   *slog.Logger
}

// NewGraph creates a graph over the backend's distance edges
func NewGraph(backend storage.Backend, fallback *float64) *Graph {
	return &Graph{
		backend:  backend,
		fallback: fallback,
		logger:   logging.GetGlobalLogger("locations"),
	}
}

// SetDistance declares the distance between a and b within a manuscript or world scope
func (g *Graph) SetDistance(ctx context.Context, scopeID, a, b string, distance float64) error {
	scopeID, a, b = strings.TrimSpace(scopeID), strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case scopeID == "":
		return errors.ValidationRequired("scope id")
	case a == "" || b == "":
		return errors.ValidationRequired("location id")
	case a == b:
		return errors.Newf(errors.ErrCodeValidationInvalid, "location '%s' cannot have a distance to itself", a)
	case math.IsNaN(distance) || math.IsInf(distance, 0):
		return errors.New(errors.ErrCodeValidationRange, "distance must be a finite number")
	case distance < 0:
		return errors.Newf(errors.ErrCodeValidationRange, "distance must be >= 0, got %v", distance)
	}

	a, b = storage.CanonicalPair(a, b)
	if err := g.backend.SetDistance(ctx, timeline.LocationDistance{
		ScopeID:   scopeID,
		LocationA: a,
		LocationB: b,
		Distance:  distance,
	}); err != nil {
		return errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to store distance")
	}

	g.logger.DebugContext(ctx, "Distance declared",
		slog.String("scope_id", scopeID),
		slog.String("location_a", a),
		slog.String("location_b", b),
		slog.Float64("distance", distance),
	)
	return nil
}

// GetDistance resolves the distance between two locations for a manuscript.
// The manuscript's own edge wins over its world's edge; the configured fallback
// is used last. ok is false when the distance is unknown.
func (g *Graph) GetDistance(ctx context.Context, manuscriptID, a, b string) (float64, bool, error) {
	if a == b {
		return 0, true, nil
	}

	d, err := g.backend.GetDistance(ctx, manuscriptID, a, b)
	if err != nil {
		return 0, false, err
	}
	if d != nil {
		return d.Distance, true, nil
	}

	manuscript, err := g.backend.GetManuscript(ctx, manuscriptID)
	if err != nil {
		return 0, false, err
	}
	if manuscript != nil && manuscript.WorldID != "" && manuscript.WorldID != manuscriptID {
		d, err = g.backend.GetDistance(ctx, manuscript.WorldID, a, b)
		if err != nil {
			return 0, false, err
		}
		if d != nil {
			return d.Distance, true, nil
		}
	}

	if g.fallback != nil {
		return *g.fallback, true, nil
	}
	return 0, false, nil
}

// Lookup returns a memoizing distance function bound to one manuscript. The first
// storage error is kept and reported by the returned err function; lookups after
// an error report the distance as unknown.
func (g *Graph) Lookup(ctx context.Context, manuscriptID string) (lookup func(a, b string) (float64, bool), errFn func() error) {
	type result struct {
		d  float64
		ok bool
	}
	cache := make(map[[2]string]result)
	var firstErr error

	lookup = func(a, b string) (float64, bool) {
		if firstErr != nil {
			return 0, false
		}
		x, y := storage.CanonicalPair(a, b)
		key := [2]string{x, y}
		if r, ok := cache[key]; ok {
			return r.d, r.ok
		}
		d, ok, err := g.GetDistance(ctx, manuscriptID, x, y)
		if err != nil {
			firstErr = err
			return 0, false
		}
		cache[key] = result{d: d, ok: ok}
		return d, ok
	}
	return lookup, func() error { return firstErr }
}
