package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/JamesPrial/timeline-core/internal/storage"
	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/logging"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

// DefaultWorkers is the number of manuscripts validated in parallel
const DefaultWorkers = 4

// Validator revalidates one manuscript and reports how many stored findings changed
type Validator interface {
	Rescan(ctx context.Context, manuscriptID string) (int, error)
}

// Runner executes world scans in the background
type Runner struct {
	coordinator *Coordinator
	backend     storage.Backend
	validator   Validator
	workers     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
	errLog *errors.Logger
	tracer trace.Tracer
}

func NewRunner(coordinator *Coordinator, backend storage.Backend, validator Validator, workers int) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		coordinator: coordinator,
		backend:     backend,
		validator:   validator,
		workers:     workers,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logging.GetGlobalLogger("scan.runner"),
		errLog:      errors.NewLogger("scan.runner"),
		tracer:      otel.Tracer("github.com/JamesPrial/timeline-core/internal/scan"),
	}
}

// Start begins a scan of the given manuscripts, or of every manuscript in the
// world when none are given. A scan already running for the world is returned
// instead of starting another.
func (r *Runner) Start(ctx context.Context, worldID string, manuscriptIDs []string) (timeline.ScanTask, error) {
	if strings.TrimSpace(worldID) == "" {
		return timeline.ScanTask{}, errors.ValidationRequired("worldId")
	}
	if active, ok := r.coordinator.Active(worldID); ok {
		return active, nil
	}

	manuscripts, err := r.resolve(ctx, worldID, manuscriptIDs)
	if err != nil {
		return timeline.ScanTask{}, err
	}

	task, created := r.coordinator.CreateTask(worldID, len(manuscripts))
	if !created {
		return task, nil
	}

	r.wg.Add(1)
	go r.run(task, manuscripts)
	return task, nil
}

// Poll returns the current snapshot of a scan
func (r *Runner) Poll(taskID string) (timeline.ScanTask, error) {
	return r.coordinator.Get(taskID)
}

// Wait blocks until every started scan has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels running scans and waits for them to stop
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) resolve(ctx context.Context, worldID string, ids []string) ([]timeline.Manuscript, error) {
	if len(ids) == 0 {
		manuscripts, err := r.backend.ListManuscripts(ctx, worldID)
		if err != nil {
			return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to list manuscripts")
		}
		return manuscripts, nil
	}

	ids = timeline.NormalizeIDs(ids)
	manuscripts := make([]timeline.Manuscript, 0, len(ids))
	for _, id := range ids {
		m, err := r.backend.GetManuscript(ctx, id)
		if err != nil {
			return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to load manuscript")
		}
		if m == nil {
			// Unknown ids are kept so the scan records them as failures.
			m = &timeline.Manuscript{ID: id, WorldID: worldID, Title: id}
		}
		manuscripts = append(manuscripts, *m)
	}
	return manuscripts, nil
}

type outcome struct {
	manuscript timeline.Manuscript
	changes    int
	err        error
}

// run is the task's owning goroutine and its only progress writer
func (r *Runner) run(task timeline.ScanTask, manuscripts []timeline.Manuscript) {
	defer r.wg.Done()

	ctx := logging.WithWorldID(r.ctx, task.WorldID)
	ctx, span := r.tracer.Start(ctx, "scan.Run", trace.WithAttributes(
		attribute.String("world.id", task.WorldID),
		attribute.String("task.id", task.ID),
		attribute.Int("manuscripts", len(manuscripts)),
	))
	defer span.End()

	timer := logging.StartTimer(ctx, r.logger, "worldScan")
	defer timer.End()

	results := make(chan outcome)
	go r.dispatch(ctx, task.ID, manuscripts, results)

	progress := Progress{CurrentStage: "validating"}
	r.coordinator.UpdateProgress(task.ID, progress)

	for o := range results {
		progress.ManuscriptsCompleted++
		progress.CurrentManuscriptTitle = o.manuscript.Title
		if o.err != nil {
			progress.Failures = append(progress.Failures, timeline.ManuscriptFailure{
				ManuscriptID: o.manuscript.ID,
				Error:        o.err.Error(),
			})
			r.logger.WarnContext(ctx, "Manuscript validation failed",
				slog.String("task_id", task.ID),
				slog.String("manuscript_id", o.manuscript.ID),
				slog.String("error", o.err.Error()),
			)
		} else {
			progress.TotalChanges += o.changes
		}
		r.coordinator.UpdateProgress(task.ID, progress)
	}

	span.SetAttributes(
		attribute.Int("failures", len(progress.Failures)),
		attribute.Int("changes", progress.TotalChanges),
	)

	switch {
	case r.superseded(task.ID):
		span.SetStatus(codes.Error, "superseded")
	case ctx.Err() != nil && progress.ManuscriptsCompleted < len(manuscripts):
		span.SetStatus(codes.Error, "canceled")
		r.coordinator.FailTask(task.ID, "scan canceled")
	case len(manuscripts) > 0 && len(progress.Failures) == len(manuscripts):
		span.SetStatus(codes.Error, "all manuscripts failed")
		r.coordinator.FailTask(task.ID, summarize(progress.Failures, len(manuscripts)))
	default:
		summary := summarize(progress.Failures, len(manuscripts))
		if summary != "" {
			partial := errors.New(errors.ErrCodePartialScanFailure, summary).WithDetails(progress.Failures)
			_ = r.errLog.LogError(ctx, partial, "worldScan")
		}
		r.coordinator.CompleteTask(task.ID, summary)
	}
}

// dispatch validates manuscripts on a bounded pool. It stops handing out work
// once the scan is canceled or superseded.
func (r *Runner) dispatch(ctx context.Context, taskID string, manuscripts []timeline.Manuscript, results chan<- outcome) {
	defer close(results)

	var g errgroup.Group
	g.SetLimit(r.workers)
	for _, m := range manuscripts {
		if ctx.Err() != nil || r.superseded(taskID) {
			break
		}
		m := m
		g.Go(func() error {
			if ctx.Err() != nil || r.superseded(taskID) {
				return nil
			}
			changes, err := r.validate(ctx, m.ID)
			results <- outcome{manuscript: m, changes: changes, err: err}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) validate(ctx context.Context, manuscriptID string) (changes int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf(errors.ErrCodeInternal, "validation panicked: %v", p)
		}
	}()
	return r.validator.Rescan(ctx, manuscriptID)
}

func (r *Runner) superseded(taskID string) bool {
	s, err := r.coordinator.Get(taskID)
	return err == nil && s.Status.Terminal()
}

// summarize builds the aggregate error of a scan with failed manuscripts
func summarize(failures []timeline.ManuscriptFailure, total int) string {
	if len(failures) == 0 {
		return ""
	}
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.ManuscriptID, f.Error))
	}
	return fmt.Sprintf("%d of %d manuscripts failed: %s", len(failures), total, strings.Join(parts, "; "))
}
