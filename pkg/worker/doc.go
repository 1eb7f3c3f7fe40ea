// Package worker provides the execution wrapper that runs user logic for a
// single task inside an isolated context.
//
// A Worker is one-shot: it moves from StateNew to StateRunning when Start
// is called and always ends in StateFinished, even when the user logic
// returns an error or panics. The output is kept only on success; failures
// are available through Err so the runner can record them on the task.
//
// # Progress
//
// When progress is enabled for the registered worker, the wrapper forwards
// Advance, SetMessage, SetProgress, Display and Clear to an
// api.ProgressSink, tagged with the worker's instance id and preceded by a
// memory stats report. User logic reaches the reporter through the task
// context:
//
//	func process(ctx context.Context, args ...any) (any, error) {
//	    p := worker.ProgressFrom(ctx)
//	    defer p.Advance(1)
//	    ...
//	}
//
// Without progress enabled ProgressFrom returns a no-op reporter.
package worker
