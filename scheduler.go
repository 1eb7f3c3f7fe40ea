package parallel

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/parallel/internal/channel"
	"github.com/petrijr/parallel/internal/history"
	"github.com/petrijr/parallel/internal/logging"
	"github.com/petrijr/parallel/internal/progress"
	"github.com/petrijr/parallel/internal/protocol"
	"github.com/petrijr/parallel/internal/runner"
)

// Scheduler is the client side of a runner. Every method sends one or
// more commands to the runner and waits for the replies, so all of them
// are synchronous and safe for concurrent use.
//
// The worker selected by the last Using call is the one RunTask binds new
// tasks to. Callers sharing a Scheduler across goroutines must serialize
// Using/RunTask pairs themselves.
type Scheduler struct {
	id            string
	mode          Mode
	conn          runner.Conn
	logger        *slog.Logger
	forwarder     *progress.Forwarder
	history       HistoryStore
	awaitInterval time.Duration

	closeOnce sync.Once
	closeErr  error
}

// New starts a Scheduler configured by cfg.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.logger == nil {
		o.logger = logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	}

	observers := []Observer{NewLoggingObserver(o.logger), o.observer}
	if o.history != nil {
		observers = append(observers, history.NewObserver(o.id, o.history, o.logger))
	}

	s := &Scheduler{
		id:            o.id,
		mode:          cfg.Mode.Resolve(),
		logger:        o.logger.With("scheduler_id", o.id),
		history:       o.history,
		awaitInterval: cfg.AwaitInterval,
	}

	ropts := runner.Options{
		ID:           o.id,
		Hub:          channel.DefaultHub(),
		Logger:       o.logger,
		Observer:     NewCompositeObserver(observers...),
		Budget:       cfg.Budget(),
		StartTimeout: cfg.StartTimeout,
	}
	if o.sink != nil {
		s.forwarder = progress.NewForwarder(o.sink, 0)
		ropts.Progress = s.forwarder
	}

	var err error
	switch s.mode {
	case ModeInline:
		s.conn, err = runner.StartInline(ropts)
	default:
		s.conn, err = runner.StartParallel(ropts, cfg.PollInterval)
	}
	if err != nil {
		if s.forwarder != nil {
			s.forwarder.Close()
		}
		return nil, fmt.Errorf("parallel: start runner: %w", err)
	}

	s.logger.Debug("scheduler started", slog.String("mode", string(s.mode)), slog.Int("budget", ropts.Budget))
	return s, nil
}

// ID returns the instance id scoping this scheduler's channels.
func (s *Scheduler) ID() string { return s.id }

// Mode returns the resolved execution mode.
func (s *Scheduler) Mode() Mode { return s.mode }

func call[T any](ctx context.Context, s *Scheduler, cmd protocol.Command) (T, error) {
	var zero T
	v, err := s.conn.Call(ctx, cmd)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected %T reply to %s", ErrInvalidMessage, v, cmd.Action())
	}
	return out, nil
}

// Using selects the worker new tasks are bound to, registering it first
// if needed.
//
// A named worker already registered is selected again; passing
// constructor arguments for it fails with ErrWorkerAlreadyDefined. A
// function worker is registered anew on every call.
func (s *Scheduler) Using(ctx context.Context, def WorkerDef, args ...any) (RegisteredWorker, error) {
	if named, ok := def.(NamedWorker); ok {
		found, err := call[protocol.WorkerLookup](ctx, s, protocol.GetRegisteredWorker{Name: named.Name})
		if err != nil {
			return RegisteredWorker{}, err
		}
		if found.Found {
			if len(args) > 0 {
				return RegisteredWorker{}, fmt.Errorf("%w: %q", ErrWorkerAlreadyDefined, named.Name)
			}
			return found.Worker, nil
		}
	}
	return call[RegisteredWorker](ctx, s, protocol.RegisterWorker{Def: def, Args: args})
}

// RunTask submits a task with data as input to the selected worker and
// returns its id.
func (s *Scheduler) RunTask(ctx context.Context, data ...any) (int, error) {
	return call[int](ctx, s, protocol.QueueTask{Data: data})
}

// Tasks returns a sequence of task snapshots in submission order. Every
// iteration fetches a fresh snapshot.
func (s *Scheduler) Tasks(ctx context.Context) iter.Seq2[Task, error] {
	return func(yield func(Task, error) bool) {
		ch, err := call[<-chan Task](ctx, s, protocol.GetTasks{})
		if err != nil {
			yield(Task{}, err)
			return
		}
		for t := range ch {
			if !yield(t, nil) {
				return
			}
		}
	}
}

// TaskList returns a snapshot of every task.
func (s *Scheduler) TaskList(ctx context.Context) ([]Task, error) {
	var out []Task
	for t, err := range s.Tasks(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// RemoveTask deletes a task, cancelling it first if it is running. It
// reports whether the task existed.
func (s *Scheduler) RemoveTask(ctx context.Context, id int) (bool, error) {
	return call[bool](ctx, s, protocol.RemoveTask{ID: id})
}

// RemovePendingTasks deletes every task that has not started yet.
func (s *Scheduler) RemovePendingTasks(ctx context.Context) error {
	_, err := s.conn.Call(ctx, protocol.RemovePendingTasks{})
	return err
}

// RemoveAllTasks cancels running tasks and deletes every task.
func (s *Scheduler) RemoveAllTasks(ctx context.Context) error {
	_, err := s.conn.Call(ctx, protocol.RemoveAllTasks{})
	return err
}

// SetMaxCPUCountUsage sets how many tasks may run at once (at least 1)
// and returns the new budget.
func (s *Scheduler) SetMaxCPUCountUsage(ctx context.Context, n int) (int, error) {
	return call[int](ctx, s, protocol.SetMaxCPUCount{Count: max(1, n)})
}

// SetMaxCPUPercentageUsage sets the budget to fraction p of the logical
// cores, clamped to [0,1] and never below one task, and returns it.
func (s *Scheduler) SetMaxCPUPercentageUsage(ctx context.Context, p float64) (int, error) {
	return call[int](ctx, s, protocol.SetMaxCPUPercentage{Percentage: min(1, max(0, p))})
}

// AwaitTasksCompletion polls the runner until no task is pending or
// running, the deadline passed, the Until predicate holds or ctx is done.
// It reports whether all tasks completed.
func (s *Scheduler) AwaitTasksCompletion(ctx context.Context, opts ...AwaitOption) (bool, error) {
	var o awaitOptions
	for _, opt := range opts {
		opt(&o)
	}

	for {
		reply, err := call[protocol.AwaitReply](ctx, s, protocol.Await{Deadline: o.deadline})
		if err != nil {
			return false, err
		}
		if !reply.Waiting {
			return reply.Idle(), nil
		}
		if o.until != nil && o.until() {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.awaitInterval):
		}
	}
}

// Stop detaches tasks that have not started, cancels running ones when
// force is set and waits for the rest. Detached tasks stay Pending. Stop
// does nothing in inline mode.
func (s *Scheduler) Stop(ctx context.Context, force bool) error {
	if s.mode == ModeInline {
		return nil
	}
	if _, err := s.conn.Call(ctx, protocol.StopRunningTasks{Force: force, DetachPending: true}); err != nil {
		return err
	}
	_, err := s.AwaitTasksCompletion(ctx)
	return err
}

// WithProgress enables progress reporting for the registered worker
// identified by identifier, announcing steps to the progress sink.
func (s *Scheduler) WithProgress(ctx context.Context, identifier string, steps int) error {
	_, err := s.conn.Call(ctx, protocol.EnableProgressBar{Worker: identifier, Steps: steps})
	return err
}

// ListEvents returns the recorded history of a task. It is empty unless
// the scheduler was created WithHistory.
func (s *Scheduler) ListEvents(ctx context.Context, taskID int) ([]TaskEvent, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListEvents(ctx, s.id, taskID)
}

// Close removes every task and stops the runner. Later calls on s fail
// with ErrSchedulerClosed.
func (s *Scheduler) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.RemoveAllTasks(ctx); err != nil && !errors.Is(err, ErrSchedulerClosed) {
			s.logger.Warn("remove tasks on close", slog.Any("error", err))
		}
		s.closeErr = s.conn.Close(ctx)
		if s.forwarder != nil {
			s.forwarder.Close()
		}
		s.logger.Debug("scheduler closed")
	})
	return s.closeErr
}
