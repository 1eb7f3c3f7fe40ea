// Package history records task lifecycle events for audit and debugging.
// It is not used to restore state after a restart.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/parallel/pkg/api"
)

// Store is an append-only history store for task events.
type Store interface {
	AppendEvent(ctx context.Context, ev api.TaskEvent) error
	ListEvents(ctx context.Context, schedulerID string, taskID int) ([]api.TaskEvent, error)
}

// NoopStore discards all events.
type NoopStore struct{}

func (NoopStore) AppendEvent(ctx context.Context, ev api.TaskEvent) error { return nil }
func (NoopStore) ListEvents(ctx context.Context, schedulerID string, taskID int) ([]api.TaskEvent, error) {
	return nil, nil
}

// MemoryStore keeps events in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[key][]api.TaskEvent
}

type key struct {
	scheduler string
	task      int
}

// Ensure MemoryStore implements the interfaces.
var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[key][]api.TaskEvent)}
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev api.TaskEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{scheduler: ev.SchedulerID, task: ev.TaskID}
	s.events[k] = append(s.events[k], ev)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, schedulerID string, taskID int) ([]api.TaskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.events[key{scheduler: schedulerID, task: taskID}]
	out := make([]api.TaskEvent, len(evs))
	copy(out, evs)
	return out, nil
}

// Observer appends one TaskEvent per lifecycle callback to a Store.
// Store errors are logged and otherwise ignored so scheduling never waits
// on the history.
type Observer struct {
	schedulerID string
	store       Store
	logger      *slog.Logger
}

// Ensure Observer implements api.Observer.
var _ api.Observer = (*Observer)(nil)

// NewObserver creates an observer recording events of the scheduler
// identified by schedulerID.
func NewObserver(schedulerID string, store Store, logger *slog.Logger) *Observer {
	if store == nil {
		store = NoopStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{schedulerID: schedulerID, store: store, logger: logger}
}

func (o *Observer) record(ctx context.Context, typ api.EventType, task api.Task, detail string) {
	ev := api.TaskEvent{
		SchedulerID: o.schedulerID,
		TaskID:      task.ID,
		At:          time.Now(),
		Type:        typ,
		Worker:      task.Worker,
		Detail:      detail,
	}
	if err := o.store.AppendEvent(ctx, ev); err != nil {
		o.logger.WarnContext(ctx, "history append failed",
			slog.Int("task_id", task.ID),
			slog.String("type", string(typ)),
			slog.Any("error", err),
		)
	}
}

func (o *Observer) OnTaskQueued(ctx context.Context, task api.Task) {
	o.record(ctx, api.EventTaskQueued, task, "")
}

func (o *Observer) OnTaskStarted(ctx context.Context, task api.Task) {
	o.record(ctx, api.EventTaskStarted, task, "")
}

func (o *Observer) OnTaskProcessed(ctx context.Context, task api.Task) {
	if task.Err != nil {
		o.record(ctx, api.EventTaskFailed, task, task.Err.Error())
		return
	}
	o.record(ctx, api.EventTaskProcessed, task, task.Duration().String())
}

func (o *Observer) OnTaskCancelled(ctx context.Context, task api.Task) {
	o.record(ctx, api.EventTaskCancelled, task, "")
}

func (o *Observer) OnTaskRemoved(ctx context.Context, task api.Task) {
	o.record(ctx, api.EventTaskRemoved, task, string(task.State))
}
