package runner

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/petrijr/parallel/internal/channel"
	"github.com/petrijr/parallel/internal/isolate"
	"github.com/petrijr/parallel/pkg/api"
	"github.com/petrijr/parallel/pkg/worker"
)

// outcome is the single value an isolated context hands back.
type outcome struct {
	TaskID     int
	Output     any
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// launch carries everything an isolated context needs. It holds no
// reference to runner state.
type launch struct {
	taskID int
	worker api.RegisteredWorker
	input  []any

	// hub and starter are empty in inline mode.
	hub     *channel.Hub
	starter string

	progressID string
	sink       api.ProgressSink
}

// run is the body of an isolated context.
func (l launch) run(ctx context.Context) (any, error) {
	if l.hub != nil {
		link, err := l.hub.OpenWait(ctx, l.starter)
		if err != nil {
			return nil, fmt.Errorf("%w: task %d: %v", api.ErrTaskStartFailed, l.taskID, err)
		}
		if err := link.Release(l.taskID); err != nil {
			return nil, fmt.Errorf("%w: task %d: %v", api.ErrTaskStartFailed, l.taskID, err)
		}
	}

	proc, err := l.worker.Processor()
	if err != nil {
		now := time.Now()
		return outcome{TaskID: l.taskID, Err: err, StartedAt: now, FinishedAt: now}, nil
	}

	var opts []worker.Option
	if l.worker.WithProgress {
		opts = append(opts, worker.WithProgress(l.progressID, l.sink))
	}
	w := worker.New(proc, opts...)
	if err := w.Start(ctx, l.input...); err != nil {
		return nil, err
	}

	out, _ := w.Result()
	return outcome{
		TaskID:     l.taskID,
		Output:     out,
		Err:        w.Err(),
		StartedAt:  w.StartedAt(),
		FinishedAt: w.FinishedAt(),
	}, nil
}

func (r *Runner) hasBudget() bool {
	return len(r.running) < r.budget
}

// tick harvests finished contexts and then admits pending tasks while the
// budget allows. Inline contexts finish as soon as they start, so in
// inline mode the tick repeats until nothing is pending or running.
func (r *Runner) tick() {
	r.harvest()
	r.admit()
	if !r.inline {
		return
	}
	for r.pending.Len() > 0 || len(r.running) > 0 {
		r.harvest()
		r.admit()
	}
}

func (r *Runner) admit() {
	for r.hasBudget() {
		id, ok := r.pending.Pop()
		if !ok {
			return
		}
		task, ok := r.tasks[id]
		if !ok {
			continue
		}
		r.start(task)
	}
}

// start moves task to Starting, launches its context and, once the
// context acknowledged startup, to Processing.
func (r *Runner) start(task *api.Task) {
	rw, ok := r.registry.Get(task.WorkerID)
	if !ok {
		r.fail(task, fmt.Errorf("%w: worker %d", api.ErrWorkerNotDefined, task.WorkerID))
		return
	}

	task.State = api.TaskStarting

	// The context gets its own copy of the input; task.Input stays with
	// the runner.
	input, copied := isolate.CopyArgs(task.Input)
	if !copied {
		r.logger.Debug("task input shared with context", slog.Int("task_id", task.ID))
	}

	l := launch{
		taskID:     task.ID,
		worker:     rw,
		input:      input,
		progressID: fmt.Sprintf("%s@%d", r.id, r.acquireSlot(task.ID)),
		sink:       r.progress,
	}

	if r.inline {
		task.State = api.TaskProcessing
		task.StartedAt = time.Now()
		r.observer.OnTaskStarted(r.ctx, *task)
		r.running[task.ID] = isolate.Call(r.ctx, l.run)
		return
	}

	l.hub, l.starter = r.hub, r.starter.Name()
	fut := isolate.Run(r.ctx, l.run)
	r.running[task.ID] = fut

	if err := r.awaitHandshake(task.ID, fut); err != nil {
		fut.Cancel()
		r.untrack(task.ID)
		r.fail(task, err)
		return
	}

	task.State = api.TaskProcessing
	task.StartedAt = time.Now()
	r.logger.Debug("task started", slog.Int("task_id", task.ID), slog.String("worker", task.Worker))
	r.observer.OnTaskStarted(r.ctx, *task)
}

// awaitHandshake waits for the context of task id to acknowledge startup.
// Acknowledgements of contexts that timed out earlier are skipped.
func (r *Runner) awaitHandshake(id int, fut *isolate.Future) error {
	timer := time.NewTimer(r.startTimeout)
	defer timer.Stop()

	for {
		select {
		case v := <-r.starter.C():
			if got, ok := v.(int); ok && got == id {
				return nil
			}
		case <-fut.Wait():
			if r.drainHandshake(id) {
				return nil
			}
			if _, err := fut.Value(); err != nil {
				return err
			}
			return fmt.Errorf("%w: task %d exited without handshake", api.ErrTaskStartFailed, id)
		case <-timer.C:
			return fmt.Errorf("%w: task %d: no handshake within %s", api.ErrTaskStartFailed, id, r.startTimeout)
		}
	}
}

func (r *Runner) drainHandshake(id int) bool {
	for {
		select {
		case v := <-r.starter.C():
			if got, ok := v.(int); ok && got == id {
				return true
			}
		default:
			return false
		}
	}
}

// fail ends a task that could not be started.
func (r *Runner) fail(task *api.Task, err error) {
	r.logger.Warn("task start failed", slog.Int("task_id", task.ID), slog.Any("error", err))
	task.State = api.TaskCancelled
	task.Err = err
	task.FinishedAt = time.Now()
	r.observer.OnTaskCancelled(r.ctx, *task)
}

// harvest moves every finished context's task to Processed. A result for
// a task that is no longer in the table is discarded.
func (r *Runner) harvest() {
	for _, id := range slices.Sorted(maps.Keys(r.running)) {
		fut := r.running[id]
		if !fut.Done() {
			continue
		}
		r.untrack(id)

		task, ok := r.tasks[id]
		if !ok {
			continue
		}
		r.finish(task, fut)
	}
}

func (r *Runner) finish(task *api.Task, fut *isolate.Future) {
	task.State = api.TaskProcessed
	task.FinishedAt = time.Now()

	v, err := fut.Value()
	switch res := v.(type) {
	case outcome:
		task.Output = res.Output
		task.Err = res.Err
		if !res.StartedAt.IsZero() {
			task.StartedAt = res.StartedAt
			task.FinishedAt = res.FinishedAt
		}
	default:
		task.Err = err
	}

	if task.Err != nil {
		task.Output = nil
		r.logger.Debug("task failed", slog.Int("task_id", task.ID), slog.Any("error", task.Err))
	} else {
		r.logger.Debug("task processed", slog.Int("task_id", task.ID))
	}
	r.observer.OnTaskProcessed(r.ctx, *task)
}

// cancelTask makes one attempt to stop the context of a running task.
func (r *Runner) cancelTask(task *api.Task) {
	fut, ok := r.running[task.ID]
	if !ok {
		return
	}
	fut.Cancel()
	r.untrack(task.ID)

	task.State = api.TaskCancelled
	task.FinishedAt = time.Now()
	r.logger.Debug("task cancelled", slog.Int("task_id", task.ID))
	r.observer.OnTaskCancelled(r.ctx, *task)
}

// remove deletes a task from the table, stopping its context first.
func (r *Runner) remove(id int) bool {
	task, ok := r.tasks[id]
	if !ok {
		return false
	}
	r.pending.Remove(id)
	if fut, ok := r.running[id]; ok {
		fut.Cancel()
		r.untrack(id)
	}
	delete(r.tasks, id)
	r.observer.OnTaskRemoved(r.ctx, *task)
	return true
}

func (r *Runner) acquireSlot(taskID int) int {
	var slot int
	if n := len(r.freeSlots); n > 0 {
		slot = r.freeSlots[n-1]
		r.freeSlots = r.freeSlots[:n-1]
	} else {
		slot = r.nextSlot
		r.nextSlot++
	}
	r.slots[taskID] = slot
	return slot
}

// untrack drops task id from the running set and frees its slot.
func (r *Runner) untrack(id int) {
	delete(r.running, id)
	if slot, ok := r.slots[id]; ok {
		delete(r.slots, id)
		r.freeSlots = append(r.freeSlots, slot)
	}
}
