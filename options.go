package parallel

import (
	"log/slog"
	"time"
)

type options struct {
	id       string
	logger   *slog.Logger
	observer Observer
	sink     ProgressSink
	history  HistoryStore
}

// Option configures a Scheduler.
type Option func(*options)

// WithLogger sets the logger. By default one is built from
// Config.LogLevel and Config.LogFormat.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver adds an observer of task lifecycle events.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithProgressSink sets where progress reports of workers with progress
// enabled are delivered.
func WithProgressSink(sink ProgressSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithHistory records every task event into store.
func WithHistory(store HistoryStore) Option {
	return func(o *options) { o.history = store }
}

// WithInstanceID sets the id scoping the scheduler's channel names.
// A random id is used by default.
func WithInstanceID(id string) Option {
	return func(o *options) { o.id = id }
}

type awaitOptions struct {
	deadline time.Time
	until    func() bool
}

// AwaitOption configures AwaitTasksCompletion.
type AwaitOption func(*awaitOptions)

// WithDeadline stops waiting at t.
func WithDeadline(t time.Time) AwaitOption {
	return func(o *awaitOptions) { o.deadline = t }
}

// WithTimeout stops waiting after d.
func WithTimeout(d time.Duration) AwaitOption {
	return func(o *awaitOptions) { o.deadline = time.Now().Add(d) }
}

// Until stops waiting as soon as predicate returns true. It is checked
// between polls.
func Until(predicate func() bool) AwaitOption {
	return func(o *awaitOptions) { o.until = predicate }
}
