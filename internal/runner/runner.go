// Package runner implements the scheduling actor.
//
// A Runner owns the registered workers, the task table, the pending queue,
// the handles of running isolated contexts and the CPU budget. It processes
// one command at a time, so none of that state needs locking. Commands
// reach it either over a channel link served by Listen (parallel mode) or
// through direct calls to Dispatch (inline mode); the handlers are the same.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/parallel/internal/channel"
	"github.com/petrijr/parallel/internal/isolate"
	"github.com/petrijr/parallel/internal/protocol"
	"github.com/petrijr/parallel/internal/taskqueue"
	"github.com/petrijr/parallel/pkg/api"
	"github.com/petrijr/parallel/pkg/worker"
)

// LinkName is the name of the scheduler's link to the runner.
func LinkName(id string) string { return "runner@" + id }

// PollerLinkName is the name of the poller's link to the runner.
func PollerLinkName(id string) string { return LinkName(id) + ":poller" }

// StarterName is the name of the channel isolated contexts use to
// acknowledge startup.
func StarterName(id string) string { return "starter@" + id }

// Options configures a Runner.
type Options struct {
	// ID scopes channel names. A random id is used when empty.
	ID string

	Hub      *channel.Hub
	Logger   *slog.Logger
	Observer api.Observer
	Progress api.ProgressSink

	// Budget is the initial number of tasks allowed to run at once.
	Budget int

	// StartTimeout bounds the wait for a context's startup handshake.
	StartTimeout time.Duration

	// Inline runs contexts on the runner's goroutine and skips the
	// handshake.
	Inline bool

	// Memory reports the memory used by the runner's process.
	Memory func() uint64
}

// Runner is the scheduling actor.
type Runner struct {
	id           string
	hub          *channel.Hub
	logger       *slog.Logger
	observer     api.Observer
	progress     api.ProgressSink
	memory       func() uint64
	startTimeout time.Duration
	inline       bool

	ctx    context.Context
	cancel context.CancelFunc

	// starter is nil in inline mode.
	starter *channel.TwoWay

	registry *workerRegistry
	tasks    map[int]*api.Task
	nextID   int
	pending  *taskqueue.Queue
	running  map[int]*isolate.Future
	budget   int

	// Context slots are reused once a task leaves the running set, so
	// progress reports stay keyed by at most budget contexts.
	slots     map[int]int
	freeSlots []int
	nextSlot  int

	progressEnabled bool
	closed          bool
}

// Ensure Runner implements protocol.Handler.
var _ protocol.Handler = (*Runner)(nil)

// New creates a Runner. In parallel mode it binds the starter channel on
// the hub.
func New(opts Options) (*Runner, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Hub == nil {
		opts.Hub = channel.DefaultHub()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = api.NoopObserver{}
	}
	if opts.Progress == nil {
		opts.Progress = api.NoopProgressSink{}
	}
	if opts.Memory == nil {
		opts.Memory = worker.MemoryUsage
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		id:           opts.ID,
		hub:          opts.Hub,
		logger:       opts.Logger.With("component", "runner", "scheduler_id", opts.ID),
		observer:     opts.Observer,
		progress:     opts.Progress,
		memory:       opts.Memory,
		startTimeout: opts.StartTimeout,
		inline:       opts.Inline,
		ctx:          ctx,
		cancel:       cancel,
		registry:     newWorkerRegistry(),
		tasks:        make(map[int]*api.Task),
		pending:      taskqueue.New(),
		running:      make(map[int]*isolate.Future),
		slots:        make(map[int]int),
		budget:       max(1, opts.Budget),
	}

	if !r.inline {
		starter, err := r.hub.Make(StarterName(r.id), channel.DefaultCapacity)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("runner: bind starter channel: %w", err)
		}
		r.starter = starter
	}

	return r, nil
}

func (r *Runner) ID() string { return r.id }

// Dispatch runs one command and returns its reply, or an
// *api.ParallelError if the command failed. It never panics.
//
// The envelope of a panic locates the panicking frame. Handlers return
// plain errors without a location, so their envelope locates Dispatch.
func (r *Runner) Dispatch(msg any) (reply any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked", slog.Any("panic", rec))
			reply = api.NewParallelError(fmt.Errorf("runner: handler panicked: %v", rec), 2)
		}
	}()

	if r.closed {
		return api.NewParallelError(api.ErrSchedulerClosed, 0)
	}

	v, err := protocol.Visit(r, msg)
	if err != nil {
		r.logger.Debug("command failed", slog.Any("error", err))
		return api.NewParallelError(err, 0)
	}
	return v
}

// Listen serves commands from the scheduler link and the poller link until
// a Close command was handled, either link is closed or ctx is done. Each
// reply goes back on the link the command came from. poller may be nil.
func (r *Runner) Listen(ctx context.Context, link, poller *channel.TwoWay) error {
	defer r.shutdown()
	defer link.Close()

	var pollC <-chan any
	var pollDone <-chan struct{}
	if poller != nil {
		defer poller.Close()
		pollC, pollDone = poller.C(), poller.Done()
	}

	r.logger.Debug("runner listening", slog.Int("budget", r.budget))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-link.Done():
			return nil
		case msg := <-link.C():
			r.serve(link, msg)
		case msg := <-pollC:
			r.serve(poller, msg)
		case <-pollDone:
			pollC, pollDone = nil, nil
		}

		if r.closed {
			r.logger.Debug("runner closed")
			return nil
		}
	}
}

func (r *Runner) serve(link *channel.TwoWay, msg any) {
	reply := r.Dispatch(msg)
	if err := link.Send(reply); err != nil {
		r.logger.Warn("reply dropped", slog.String("link", link.Name()), slog.Any("error", err))
	}
}

// shutdown cancels every running context and releases the starter channel.
func (r *Runner) shutdown() {
	for _, id := range slices.Sorted(maps.Keys(r.running)) {
		r.running[id].Cancel()
		r.untrack(id)
	}
	r.closed = true
	r.cancel()
	if r.starter != nil {
		_ = r.starter.Close()
	}
}
