package parallel

import (
	"context"
	"iter"
	"sync"
	"time"
)

var (
	defaultOnce sync.Once
	defaultSch  *Scheduler
	defaultErr  error
)

// Default returns the process-wide Scheduler, starting it on first use with
// the configuration from ConfigFromEnv.
func Default() (*Scheduler, error) {
	defaultOnce.Do(func() {
		cfg, err := ConfigFromEnv()
		if err != nil {
			defaultErr = err
			return
		}
		defaultSch, defaultErr = New(cfg)
	})
	return defaultSch, defaultErr
}

// Convenience helpers that forward to the Default scheduler.

// Using forwards to Default().Using.
func Using(ctx context.Context, def WorkerDef, args ...any) (RegisteredWorker, error) {
	s, err := Default()
	if err != nil {
		return RegisteredWorker{}, err
	}
	return s.Using(ctx, def, args...)
}

// RunTask forwards to Default().RunTask.
func RunTask(ctx context.Context, data ...any) (int, error) {
	s, err := Default()
	if err != nil {
		return 0, err
	}
	return s.RunTask(ctx, data...)
}

// Tasks forwards to Default().Tasks.
func Tasks(ctx context.Context) iter.Seq2[Task, error] {
	s, err := Default()
	if err != nil {
		return func(yield func(Task, error) bool) { yield(Task{}, err) }
	}
	return s.Tasks(ctx)
}

// TaskList forwards to Default().TaskList.
func TaskList(ctx context.Context) ([]Task, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	return s.TaskList(ctx)
}

// RemoveTask forwards to Default().RemoveTask.
func RemoveTask(ctx context.Context, id int) (bool, error) {
	s, err := Default()
	if err != nil {
		return false, err
	}
	return s.RemoveTask(ctx, id)
}

// RemovePendingTasks forwards to Default().RemovePendingTasks.
func RemovePendingTasks(ctx context.Context) error {
	s, err := Default()
	if err != nil {
		return err
	}
	return s.RemovePendingTasks(ctx)
}

// RemoveAllTasks forwards to Default().RemoveAllTasks.
func RemoveAllTasks(ctx context.Context) error {
	s, err := Default()
	if err != nil {
		return err
	}
	return s.RemoveAllTasks(ctx)
}

// SetMaxCPUCountUsage forwards to Default().SetMaxCPUCountUsage.
func SetMaxCPUCountUsage(ctx context.Context, n int) (int, error) {
	s, err := Default()
	if err != nil {
		return 0, err
	}
	return s.SetMaxCPUCountUsage(ctx, n)
}

// SetMaxCPUPercentageUsage forwards to Default().SetMaxCPUPercentageUsage.
func SetMaxCPUPercentageUsage(ctx context.Context, p float64) (int, error) {
	s, err := Default()
	if err != nil {
		return 0, err
	}
	return s.SetMaxCPUPercentageUsage(ctx, p)
}

// AwaitTasksCompletion forwards to Default().AwaitTasksCompletion.
func AwaitTasksCompletion(ctx context.Context, opts ...AwaitOption) (bool, error) {
	s, err := Default()
	if err != nil {
		return false, err
	}
	return s.AwaitTasksCompletion(ctx, opts...)
}

// AwaitTimeout is shorthand for AwaitTasksCompletion(ctx, WithTimeout(d)).
func AwaitTimeout(ctx context.Context, d time.Duration) (bool, error) {
	return AwaitTasksCompletion(ctx, WithTimeout(d))
}

// Stop forwards to Default().Stop.
func Stop(ctx context.Context, force bool) error {
	s, err := Default()
	if err != nil {
		return err
	}
	return s.Stop(ctx, force)
}

// WithProgress forwards to Default().WithProgress.
func WithProgress(ctx context.Context, identifier string, steps int) error {
	s, err := Default()
	if err != nil {
		return err
	}
	return s.WithProgress(ctx, identifier, steps)
}
