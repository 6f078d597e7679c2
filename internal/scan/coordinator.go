// Package scan runs background rescans of whole worlds. The Coordinator keeps at
// most one running scan per world; the Runner executes them on a worker pool.
package scan

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/logging"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

// Progress is the mutable part of a running task
type Progress struct {
	ManuscriptsCompleted   int
	CurrentManuscriptTitle string
	CurrentStage           string
	TotalChanges           int
	Failures               []timeline.ManuscriptFailure
}

type task struct {
	// snapshot is replaced whole on every write so readers never see a partial update
	snapshot atomic.Pointer[timeline.ScanTask]
}

func (t *task) load() timeline.ScanTask {
	return clone(*t.snapshot.Load())
}

// Coordinator is the registry of scan tasks. Registration and the active-task
// lookup share one lock; pollers read snapshots.
type Coordinator struct {
	mu     sync.RWMutex
	tasks  map[string]*task
	active map[string]string

	logger *slog.Logger
	now    func() time.Time
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		tasks:  make(map[string]*task),
		active: make(map[string]string),
		logger: logging.GetGlobalLogger("scan.coordinator"),
		now:    time.Now,
	}
}

// CreateTask registers a running scan for the world. When one is already running
// it is returned instead and created is false.
func (c *Coordinator) CreateTask(worldID string, totalManuscripts int) (snapshot timeline.ScanTask, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.active[worldID]; ok {
		c.logger.Debug("Scan already running",
			slog.String("world_id", worldID),
			slog.String("task_id", id),
		)
		return c.tasks[id].load(), false
	}

	s := &timeline.ScanTask{
		ID:               uuid.New().String(),
		WorldID:          worldID,
		Status:           timeline.ScanRunning,
		TotalManuscripts: totalManuscripts,
		StartedAt:        c.now().UTC(),
	}
	t := &task{}
	t.snapshot.Store(s)
	c.tasks[s.ID] = t
	c.active[worldID] = s.ID

	c.logger.Info("Scan task created",
		slog.String("world_id", worldID),
		slog.String("task_id", s.ID),
		slog.Int("total_manuscripts", totalManuscripts),
	)
	return clone(*s), true
}

// UpdateProgress replaces the progress of a running task. Unknown and terminal
// tasks are left alone and false is returned.
func (c *Coordinator) UpdateProgress(taskID string, p Progress) bool {
	_, ok := c.update(taskID, func(s *timeline.ScanTask) {
		s.ManuscriptsCompleted = p.ManuscriptsCompleted
		s.CurrentManuscriptTitle = p.CurrentManuscriptTitle
		s.CurrentStage = p.CurrentStage
		s.TotalChanges = p.TotalChanges
		s.Failures = append([]timeline.ManuscriptFailure(nil), p.Failures...)
		s.ProgressPercent = percent(p.ManuscriptsCompleted, s.TotalManuscripts)
	})
	return ok
}

// CompleteTask marks a running task completed. summary is kept as the task error
// when some manuscripts failed.
func (c *Coordinator) CompleteTask(taskID, summary string) bool {
	return c.finish(taskID, timeline.ScanCompleted, summary)
}

// FailTask marks a running task failed
func (c *Coordinator) FailTask(taskID, reason string) bool {
	return c.finish(taskID, timeline.ScanFailed, reason)
}

// Supersede fails the world's running task so the next CreateTask starts a new
// one. The runner notices between manuscripts and stops.
func (c *Coordinator) Supersede(worldID string) (timeline.ScanTask, bool) {
	c.mu.RLock()
	id, ok := c.active[worldID]
	c.mu.RUnlock()
	if !ok {
		return timeline.ScanTask{}, false
	}
	if !c.FailTask(id, "superseded by a newer scan") {
		return timeline.ScanTask{}, false
	}
	snapshot, err := c.Get(id)
	return snapshot, err == nil
}

// Get returns a snapshot of a task
func (c *Coordinator) Get(taskID string) (timeline.ScanTask, error) {
	c.mu.RLock()
	t, ok := c.tasks[taskID]
	c.mu.RUnlock()
	if !ok {
		return timeline.ScanTask{}, errors.NotFound(errors.ErrCodeTaskNotFound, "scan task", taskID)
	}
	return t.load(), nil
}

// Active returns the running task of a world, if any
func (c *Coordinator) Active(worldID string) (timeline.ScanTask, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.active[worldID]
	if !ok {
		return timeline.ScanTask{}, false
	}
	return c.tasks[id].load(), true
}

// Prune forgets terminal tasks that finished before the cutoff
func (c *Coordinator) Prune(before time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, t := range c.tasks {
		s := t.snapshot.Load()
		if s.Status.Terminal() && s.CompletedAt != nil && s.CompletedAt.Before(before) {
			delete(c.tasks, id)
			removed++
		}
	}
	return removed
}

func (c *Coordinator) finish(taskID string, status timeline.ScanStatus, message string) bool {
	next, done := c.update(taskID, func(s *timeline.ScanTask) {
		now := c.now().UTC()
		s.Status = status
		s.Error = message
		s.CompletedAt = &now
		s.CurrentStage = string(status)
		if status == timeline.ScanCompleted {
			s.ProgressPercent = 100
		}
	})
	if !done {
		return false
	}

	level := slog.LevelInfo
	if status == timeline.ScanFailed {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "Scan task finished",
		slog.String("world_id", next.WorldID),
		slog.String("task_id", taskID),
		slog.String("status", string(status)),
		slog.String("error", message),
	)
	return true
}

// update applies fn to a copy of a running task and publishes it. A task that
// becomes terminal stops being the world's active task in the same critical section.
func (c *Coordinator) update(taskID string, fn func(*timeline.ScanTask)) (timeline.ScanTask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[taskID]
	if !ok {
		return timeline.ScanTask{}, false
	}
	current := t.snapshot.Load()
	if current.Status.Terminal() {
		return timeline.ScanTask{}, false
	}
	next := clone(*current)
	fn(&next)
	t.snapshot.Store(&next)

	if next.Status.Terminal() && c.active[next.WorldID] == taskID {
		delete(c.active, next.WorldID)
	}
	return clone(next), true
}

func clone(s timeline.ScanTask) timeline.ScanTask {
	s.Failures = append([]timeline.ManuscriptFailure(nil), s.Failures...)
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		s.CompletedAt = &at
	}
	return s
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}
