// Package parallel runs independent units of work across a CPU-bounded
// pool of isolated execution contexts.
//
// A program registers worker logic, submits tasks and polls for their state
// and results. All scheduling state lives in a single runner goroutine that
// processes one command at a time; the Scheduler is the synchronous client
// that talks to it.
//
// # Core Concepts
//
//  1. Scheduler
//  2. Workers
//  3. Tasks
//  4. Budget
//  5. Progress
//
// # Scheduler
//
// A Scheduler is created with New, or used implicitly through the package
// level helpers, which forward to the process-wide Default scheduler:
//
//	ctx := context.Background()
//	parallel.Using(ctx, parallel.Func(double))
//	for _, x := range []int{1, 2, 3} {
//	    parallel.RunTask(ctx, x)
//	}
//	parallel.AwaitTasksCompletion(ctx)
//
// In parallel mode the runner has its own goroutine and a poller ticks it
// every few milliseconds, so pending tasks are started even while the
// caller is busy. In inline mode (GOMAXPROCS=1, or Config.Mode set to
// ModeInline) commands run on the caller's goroutine and RunTask runs the
// task to completion before returning. Both modes produce the same task
// history.
//
// # Workers
//
// Workers come in two kinds:
//
//   - Named workers (Named) are built by a constructor for every task and
//     may be registered only once per scheduler.
//   - Function workers (Func) are registered anew on every Using call and
//     identified as "func@<index>".
//
// RunTask binds the new task to the worker selected by the last Using call.
//
// # Tasks
//
// A task moves from TaskPending to TaskStarting when the runner launches its
// context, to TaskProcessing once the context acknowledged startup, and ends
// TaskProcessed or TaskCancelled. A worker failure does not fail the task:
// it ends TaskProcessed with a nil Output and the error in Task.Err.
//
// Removal deletes a task from the table; it is not a state.
//
// # Budget
//
// At most budget tasks run at once. The budget defaults to the number of
// logical cores and can be set by count or by fraction of the cores, or
// through PARALLEL_MAX_COUNT and PARALLEL_MAX_PERCENT.
//
// # Progress
//
// Workers read their reporter with ProgressFrom(ctx). Reports are delivered
// to the ProgressSink given WithProgressSink once progress was enabled for
// the worker with WithProgress; NewLogSink aggregates them into log lines.
//
// For examples, see the /examples directory.
package parallel
