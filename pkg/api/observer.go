package api

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Observer receives task lifecycle callbacks from the runner for logging
// and metrics.
//
// Callbacks run on the runner goroutine, one at a time. Implementations
// must be fast and non-blocking; heavy work should be done asynchronously
// so as not to delay scheduling.
type Observer interface {
	// OnTaskQueued is called once the task is in the table and the
	// pending queue.
	OnTaskQueued(ctx context.Context, task Task)

	// OnTaskStarted is called when the isolated context acknowledged
	// startup and the task moved to TaskProcessing.
	OnTaskStarted(ctx context.Context, task Task)

	// OnTaskProcessed is called when a finished context was harvested.
	// task.Err is set when the worker failed.
	OnTaskProcessed(ctx context.Context, task Task)

	// OnTaskCancelled is called when an in-flight context was stopped.
	OnTaskCancelled(ctx context.Context, task Task)

	// OnTaskRemoved is called when a task is deleted from the table.
	OnTaskRemoved(ctx context.Context, task Task)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnTaskQueued(ctx context.Context, task Task)    {}
func (NoopObserver) OnTaskStarted(ctx context.Context, task Task)   {}
func (NoopObserver) OnTaskProcessed(ctx context.Context, task Task) {}
func (NoopObserver) OnTaskCancelled(ctx context.Context, task Task) {}
func (NoopObserver) OnTaskRemoved(ctx context.Context, task Task)   {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnTaskQueued(ctx context.Context, task Task) {
	for _, o := range c.observers {
		o.OnTaskQueued(ctx, task)
	}
}

func (c *CompositeObserver) OnTaskStarted(ctx context.Context, task Task) {
	for _, o := range c.observers {
		o.OnTaskStarted(ctx, task)
	}
}

func (c *CompositeObserver) OnTaskProcessed(ctx context.Context, task Task) {
	for _, o := range c.observers {
		o.OnTaskProcessed(ctx, task)
	}
}

func (c *CompositeObserver) OnTaskCancelled(ctx context.Context, task Task) {
	for _, o := range c.observers {
		o.OnTaskCancelled(ctx, task)
	}
}

func (c *CompositeObserver) OnTaskRemoved(ctx context.Context, task Task) {
	for _, o := range c.observers {
		o.OnTaskRemoved(ctx, task)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs task lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnTaskQueued(ctx context.Context, task Task) {
	o.Logger.DebugContext(ctx, "task_queued",
		slog.Int("task_id", task.ID),
		slog.String("worker", task.Worker),
	)
}

func (o *LoggingObserver) OnTaskStarted(ctx context.Context, task Task) {
	o.Logger.DebugContext(ctx, "task_started",
		slog.Int("task_id", task.ID),
		slog.String("worker", task.Worker),
	)
}

func (o *LoggingObserver) OnTaskProcessed(ctx context.Context, task Task) {
	level := slog.LevelInfo
	if task.Err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "task_processed",
		slog.Int("task_id", task.ID),
		slog.String("worker", task.Worker),
		slog.Duration("duration", task.Duration()),
		slog.Any("error", task.Err),
	)
}

func (o *LoggingObserver) OnTaskCancelled(ctx context.Context, task Task) {
	o.Logger.InfoContext(ctx, "task_cancelled",
		slog.Int("task_id", task.ID),
		slog.String("worker", task.Worker),
	)
}

func (o *LoggingObserver) OnTaskRemoved(ctx context.Context, task Task) {
	o.Logger.DebugContext(ctx, "task_removed",
		slog.Int("task_id", task.ID),
		slog.String("state", string(task.State)),
	)
}

// BasicMetrics collects simple counters and the aggregate worker duration.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	tasksQueued    atomic.Int64
	tasksStarted   atomic.Int64
	tasksProcessed atomic.Int64
	tasksFailed    atomic.Int64
	tasksCancelled atomic.Int64
	tasksRemoved   atomic.Int64
	totalDuration  atomic.Int64 // nanoseconds

	mu            sync.Mutex
	inFlight      map[int]struct{}
	maxConcurrent int
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	TasksQueued    int64
	TasksStarted   int64
	TasksProcessed int64
	TasksFailed    int64
	TasksCancelled int64
	TasksRemoved   int64

	// InFlight is the number of tasks currently in TaskProcessing.
	InFlight int
	// MaxConcurrent is the highest InFlight value observed.
	MaxConcurrent int

	AvgDuration time.Duration
}

func (m *BasicMetrics) OnTaskQueued(ctx context.Context, task Task) {
	m.tasksQueued.Add(1)
}

func (m *BasicMetrics) OnTaskStarted(ctx context.Context, task Task) {
	m.tasksStarted.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight == nil {
		m.inFlight = make(map[int]struct{})
	}
	m.inFlight[task.ID] = struct{}{}
	if len(m.inFlight) > m.maxConcurrent {
		m.maxConcurrent = len(m.inFlight)
	}
}

func (m *BasicMetrics) OnTaskProcessed(ctx context.Context, task Task) {
	m.tasksProcessed.Add(1)
	if task.Err != nil {
		m.tasksFailed.Add(1)
	} else {
		m.totalDuration.Add(task.Duration().Nanoseconds())
	}
	m.leave(task.ID)
}

func (m *BasicMetrics) OnTaskCancelled(ctx context.Context, task Task) {
	m.tasksCancelled.Add(1)
	m.leave(task.ID)
}

func (m *BasicMetrics) OnTaskRemoved(ctx context.Context, task Task) {
	m.tasksRemoved.Add(1)
	m.leave(task.ID)
}

func (m *BasicMetrics) leave(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, id)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	processed := m.tasksProcessed.Load()
	failed := m.tasksFailed.Load()
	totalNs := m.totalDuration.Load()

	var avg time.Duration
	if ok := processed - failed; ok > 0 {
		avg = time.Duration(totalNs / ok)
	}

	m.mu.Lock()
	inFlight, maxConcurrent := len(m.inFlight), m.maxConcurrent
	m.mu.Unlock()

	return BasicMetricsSnapshot{
		TasksQueued:    m.tasksQueued.Load(),
		TasksStarted:   m.tasksStarted.Load(),
		TasksProcessed: processed,
		TasksFailed:    failed,
		TasksCancelled: m.tasksCancelled.Load(),
		TasksRemoved:   m.tasksRemoved.Load(),
		InFlight:       inFlight,
		MaxConcurrent:  maxConcurrent,
		AvgDuration:    avg,
	}
}
