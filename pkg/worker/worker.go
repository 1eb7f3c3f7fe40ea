package worker

import (
	"context"
	"fmt"
	"runtime/metrics"
	"sync"
	"time"

	"github.com/petrijr/parallel/pkg/api"
)

// State is the lifecycle state of a Worker.
type State string

const (
	StateNew      State = "NEW"
	StateRunning  State = "RUNNING"
	StateFinished State = "FINISHED"
)

// Worker runs user logic once for a single task and captures its timing
// and output.
type Worker struct {
	id   string
	proc api.Processor

	sink   api.ProgressSink
	memory func() uint64

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	finishedAt time.Time
	result     any
	err        error
}

// Option configures a Worker.
type Option func(*Worker)

// WithProgress enables progress reporting to sink. Every action is tagged
// with id and preceded by a memory stats report.
func WithProgress(id string, sink api.ProgressSink) Option {
	return func(w *Worker) {
		w.id = id
		w.sink = sink
	}
}

// WithMemoryReader overrides how the memory snapshot is taken.
func WithMemoryReader(fn func() uint64) Option {
	return func(w *Worker) {
		w.memory = fn
	}
}

// New wraps proc.
func New(proc api.Processor, opts ...Option) *Worker {
	w := &Worker{
		proc:   proc,
		state:  StateNew,
		memory: MemoryUsage,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID returns the instance identifier used in progress reports.
func (w *Worker) ID() string {
	return w.id
}

// Start runs the user logic with args. It can be called only once.
//
// A failure raised by the user logic, including a panic, does not make
// Start fail: the worker still reaches StateFinished, no output is kept and
// the failure is available through Err.
func (w *Worker) Start(ctx context.Context, args ...any) error {
	w.mu.Lock()
	if w.state != StateNew {
		w.mu.Unlock()
		return api.ErrAlreadyStarted
	}
	w.state = StateRunning
	w.startedAt = time.Now()
	w.mu.Unlock()

	out, err := w.process(ContextWithProgress(ctx, w), args)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		w.result = out
	} else {
		w.err = err
	}
	w.finishedAt = time.Now()
	w.state = StateFinished
	return nil
}

func (w *Worker) process(ctx context.Context, args []any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("worker panicked: %v", r)
		}
	}()
	return w.proc.Process(ctx, args...)
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Result returns the captured output.
func (w *Worker) Result() (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateFinished {
		return nil, api.ErrNotFinished
	}
	return w.result, nil
}

// Err returns the failure raised by the user logic, if any.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Worker) StartedAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startedAt
}

func (w *Worker) FinishedAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finishedAt
}

// Ensure Worker implements api.Progress.
var _ api.Progress = (*Worker)(nil)

func (w *Worker) Advance(steps int) {
	w.action(api.ProgressAdvance, steps)
}

func (w *Worker) SetMessage(message, name string) {
	if name == "" {
		name = "message"
	}
	w.action(api.ProgressSetMessage, message, name)
}

func (w *Worker) SetProgress(step int) {
	w.action(api.ProgressSetProgress, step)
}

func (w *Worker) Display() {
	w.action(api.ProgressDisplay)
}

func (w *Worker) Clear() {
	w.action(api.ProgressClear)
}

func (w *Worker) action(name api.ProgressAction, args ...any) {
	if w.sink == nil {
		return
	}
	w.sink.StatsReport(w.id, w.memory())
	w.sink.Action(name, args...)
}

var heapSample = []metrics.Sample{{Name: "/memory/classes/heap/objects:bytes"}}
var heapMu sync.Mutex

// MemoryUsage returns a best-effort snapshot of live heap bytes.
func MemoryUsage() uint64 {
	heapMu.Lock()
	defer heapMu.Unlock()

	metrics.Read(heapSample)
	if heapSample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return heapSample[0].Value.Uint64()
}

type progressKey struct{}

// ContextWithProgress returns a context carrying p.
func ContextWithProgress(ctx context.Context, p api.Progress) context.Context {
	return context.WithValue(ctx, progressKey{}, p)
}

// ProgressFrom returns the progress reporter of the running task. It never
// returns nil.
func ProgressFrom(ctx context.Context) api.Progress {
	if p, ok := ctx.Value(progressKey{}).(api.Progress); ok && p != nil {
		return p
	}
	return api.NoopProgress{}
}
