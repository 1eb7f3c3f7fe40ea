// Package api contains the public building blocks shared by the parallel
// scheduler and its internals.
//
// Most users interact with the higher-level parallel package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom observers, progress sinks and worker
// implementations.
//
// # Tasks
//
// A Task is a snapshot of one submitted unit of work. Its state moves
// through
//
//	PENDING -> STARTING -> PROCESSING -> PROCESSED
//	                                  \-> CANCELLED
//
// and is only ever changed by the runner. Removal deletes a task from the
// table instead of transitioning it.
//
// # Workers
//
// Worker logic implements Processor. It is registered either as a
// NamedWorker (a name plus a Constructor fed with fixed constructor
// arguments) or as a FuncWorker (an ad-hoc function). Both produce a
// RegisteredWorker.
//
// # Errors
//
// Configuration errors are sentinel values such as ErrNoWorkerSelected.
// Errors raised inside the runner cross the actor boundary as a
// ParallelError, which still matches the original sentinel with errors.Is.
//
// # Observability
//
// Observer receives task lifecycle callbacks. LoggingObserver writes them
// with log/slog, BasicMetrics counts them, and CompositeObserver fans out to
// several observers. ProgressSink is the message API of a progress
// aggregator fed by workers with progress enabled.
package api
