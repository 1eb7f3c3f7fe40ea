package runner

import (
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/petrijr/parallel/internal/config"
	"github.com/petrijr/parallel/internal/protocol"
	"github.com/petrijr/parallel/pkg/api"
)

// RegisterWorker registers and selects a worker. Reply: api.RegisteredWorker.
func (r *Runner) RegisterWorker(cmd protocol.RegisterWorker) (any, error) {
	rw, err := r.registry.Register(cmd.Def, cmd.Args)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("worker registered", slog.String("worker", rw.Identifier), slog.Int("index", rw.Index))
	return rw, nil
}

// GetRegisteredWorker selects a worker by identifier. Reply:
// protocol.WorkerLookup.
func (r *Runner) GetRegisteredWorker(cmd protocol.GetRegisteredWorker) (any, error) {
	rw, ok := r.registry.Lookup(cmd.Name)
	return protocol.WorkerLookup{Worker: rw, Found: ok}, nil
}

// QueueTask binds a new task to the selected worker and enqueues it. In
// inline mode the task runs to completion before the reply. Reply: the
// task id.
func (r *Runner) QueueTask(cmd protocol.QueueTask) (any, error) {
	rw, ok := r.registry.Selected()
	if !ok {
		return nil, api.ErrNoWorkerSelected
	}

	var input []any
	if cmd.Data != nil {
		input = append([]any{}, cmd.Data...)
	}

	task := &api.Task{
		ID:       r.nextID,
		WorkerID: rw.Index,
		Worker:   rw.Identifier,
		Input:    input,
		State:    api.TaskPending,
	}
	r.nextID++
	r.tasks[task.ID] = task
	r.pending.Push(task.ID)
	r.observer.OnTaskQueued(r.ctx, *task)

	if r.inline {
		r.tick()
	}
	return task.ID, nil
}

// GetTasks snapshots the task table in insertion order. Reply: a closed,
// buffered <-chan api.Task.
func (r *Runner) GetTasks(protocol.GetTasks) (any, error) {
	ch := make(chan api.Task, len(r.tasks))
	for _, id := range slices.Sorted(maps.Keys(r.tasks)) {
		ch <- r.tasks[id].Clone()
	}
	close(ch)
	return (<-chan api.Task)(ch), nil
}

// RemoveTask cancels the task if it is running and deletes it. Reply:
// whether the task existed.
func (r *Runner) RemoveTask(cmd protocol.RemoveTask) (any, error) {
	return r.remove(cmd.ID), nil
}

// RemovePendingTasks deletes every task that has not started yet.
// Running tasks are left alone.
func (r *Runner) RemovePendingTasks(protocol.RemovePendingTasks) (any, error) {
	for _, id := range r.pending.Drain() {
		task, ok := r.tasks[id]
		if !ok {
			continue
		}
		delete(r.tasks, id)
		r.observer.OnTaskRemoved(r.ctx, *task)
	}
	return nil, nil
}

// RemoveAllTasks stops every running task and clears the table.
func (r *Runner) RemoveAllTasks(protocol.RemoveAllTasks) (any, error) {
	r.pending.Drain()
	for _, id := range slices.Sorted(maps.Keys(r.tasks)) {
		r.remove(id)
	}
	return nil, nil
}

// StopRunningTasks harvests finished contexts and, when forced, cancels
// the others. With DetachPending the pending queue is emptied first but
// the tasks stay in the table as Pending.
func (r *Runner) StopRunningTasks(cmd protocol.StopRunningTasks) (any, error) {
	if cmd.DetachPending {
		r.pending.Drain()
	}
	r.harvest()
	if cmd.Force {
		for _, id := range slices.Sorted(maps.Keys(r.running)) {
			if task, ok := r.tasks[id]; ok {
				r.cancelTask(task)
			} else {
				r.running[id].Cancel()
				r.untrack(id)
			}
		}
	}
	return nil, nil
}

// SetMaxCPUCount overrides the budget. Reply: the new budget.
func (r *Runner) SetMaxCPUCount(cmd protocol.SetMaxCPUCount) (any, error) {
	r.budget = max(1, cmd.Count)
	r.logger.Debug("budget changed", slog.Int("budget", r.budget))
	return r.budget, nil
}

// SetMaxCPUPercentage sets the budget to a fraction of the logical cores.
// Reply: the new budget.
func (r *Runner) SetMaxCPUPercentage(cmd protocol.SetMaxCPUPercentage) (any, error) {
	r.budget = config.PercentOfCPUs(cmd.Percentage)
	r.logger.Debug("budget changed", slog.Int("budget", r.budget))
	return r.budget, nil
}

// Update is the scheduling tick.
func (r *Runner) Update(protocol.Update) (any, error) {
	r.tick()
	if r.progressEnabled {
		r.progress.StatsReport(api.MainContextID, r.memory())
	}
	return nil, nil
}

// Await reports whether tasks remain. In inline mode it drives one tick
// first. Reply: protocol.AwaitReply.
func (r *Runner) Await(cmd protocol.Await) (any, error) {
	if r.inline {
		r.tick()
	}
	reply := protocol.AwaitReply{
		Pending: r.pending.Len(),
		Running: len(r.running),
	}
	inTime := cmd.Deadline.IsZero() || !time.Now().After(cmd.Deadline)
	reply.Waiting = inTime && !reply.Idle()
	return reply, nil
}

// EnableProgressBar turns progress on for a worker and registers it with
// the progress sink.
func (r *Runner) EnableProgressBar(cmd protocol.EnableProgressBar) (any, error) {
	rw, err := r.registry.EnableProgress(cmd.Worker, cmd.Steps)
	if err != nil {
		return nil, err
	}
	r.progressEnabled = true
	r.progress.RegisterWorker(rw.Identifier, rw.Steps)
	return nil, nil
}

// Close makes Listen return after the reply was sent. Running contexts
// are cancelled.
func (r *Runner) Close(protocol.Close) (any, error) {
	r.shutdown()
	return nil, nil
}
