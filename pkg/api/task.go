package api

import "time"

// TaskState represents the lifecycle state of a Task.
type TaskState string

const (
	TaskPending    TaskState = "PENDING"
	TaskStarting   TaskState = "STARTING"
	TaskProcessing TaskState = "PROCESSING"
	TaskProcessed  TaskState = "PROCESSED"
	TaskCancelled  TaskState = "CANCELLED"
)

// IsTerminal reports whether no further transition can happen from s.
func (s TaskState) IsTerminal() bool {
	return s == TaskProcessed || s == TaskCancelled
}

// Task is a snapshot of one submitted unit of work.
//
// Tasks are owned by the runner; values handed to callers are copies and
// mutating them has no effect on scheduling.
type Task struct {
	// ID is unique per scheduler, strictly increasing and never reused.
	ID int

	// WorkerID is the index of the RegisteredWorker the task was bound to
	// at submission time.
	WorkerID int

	// Worker is the identifier of the bound RegisteredWorker.
	Worker string

	// Input holds exactly the values passed to RunTask.
	Input []any

	// Output is nil until the task is processed successfully.
	Output any

	// Err records a failure raised by the worker. The task still ends in
	// TaskProcessed; Output stays nil.
	Err error

	State TaskState

	StartedAt  time.Time
	FinishedAt time.Time
}

func (t Task) IsPending() bool        { return t.State == TaskPending }
func (t Task) IsBeingProcessed() bool { return t.State == TaskProcessing }
func (t Task) WasProcessed() bool     { return t.State == TaskProcessed }
func (t Task) WasCancelled() bool     { return t.State == TaskCancelled }

// Failed reports whether the worker returned an error or panicked.
func (t Task) Failed() bool { return t.Err != nil }

// Duration returns how long the worker ran, or zero if it has not finished.
func (t Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Clone returns a copy of t whose Input slice is not shared with t.
func (t Task) Clone() Task {
	if t.Input != nil {
		in := make([]any, len(t.Input))
		copy(in, t.Input)
		t.Input = in
	}
	return t
}
