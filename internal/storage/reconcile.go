package storage

import (
	"sort"
	"time"

	"github.com/JamesPrial/timeline-core/pkg/timeline"
	"github.com/google/uuid"
)

type reconcilePlan struct {
	// upserts holds new rows and rows whose status changed
	upserts []timeline.Inconsistency
	result  timeline.ReconcileResult
}

// planReconcile diffs a detector run against the stored rows keyed by dedup key.
// New keys are inserted, open rows that are produced again are left untouched,
// resolved rows that are produced again are reopened and open rows that are no
// longer produced are marked resolved. Nothing is deleted.
func planReconcile(manuscriptID string, stored map[string]timeline.Inconsistency, findings []timeline.Finding, now time.Time) reconcilePlan {
	var plan reconcilePlan
	produced := make(map[string]struct{}, len(findings))

	for _, finding := range findings {
		key := finding.Key()
		if _, dup := produced[key]; dup {
			continue
		}
		produced[key] = struct{}{}

		existing, ok := stored[key]
		switch {
		case !ok:
			plan.upserts = append(plan.upserts, timeline.Inconsistency{
				ID:               uuid.New().String(),
				ManuscriptID:     manuscriptID,
				Type:             finding.Type,
				Description:      finding.Description,
				Severity:         finding.Severity,
				AffectedEventIDs: timeline.SortedIDs(finding.AffectedEventIDs),
				ExtraData:        finding.Details,
				Status:           timeline.StatusOpen,
				CreatedAt:        now,
			})
			plan.result.Added++
		case existing.Status == timeline.StatusResolved:
			existing.Status = timeline.StatusOpen
			existing.ResolvedAt = nil
			existing.Description = finding.Description
			existing.Severity = finding.Severity
			existing.ExtraData = finding.Details
			plan.upserts = append(plan.upserts, existing)
			plan.result.Reopened++
		default:
			plan.result.Unchanged++
		}
	}

	keys := make([]string, 0, len(stored))
	for key := range stored {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		row := stored[key]
		if _, ok := produced[key]; ok || row.Status != timeline.StatusOpen {
			continue
		}
		resolvedAt := now
		row.Status = timeline.StatusResolved
		row.ResolvedAt = &resolvedAt
		plan.upserts = append(plan.upserts, row)
		plan.result.Resolved++
	}

	return plan
}
