package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/parallel/internal/channel"
	"github.com/petrijr/parallel/internal/config"
	"github.com/petrijr/parallel/internal/isolate"
	"github.com/petrijr/parallel/internal/protocol"
	"github.com/petrijr/parallel/pkg/api"
)

// Conn is how a scheduler talks to its runner. Call sends one command and
// returns the runner's reply; a failed command comes back as an
// *api.ParallelError.
type Conn interface {
	Call(ctx context.Context, cmd protocol.Command) (any, error)
	Close(ctx context.Context) error
	Mode() config.Mode
}

func unwrapReply(reply any) (any, error) {
	if pe, ok := reply.(*api.ParallelError); ok {
		return nil, pe
	}
	return reply, nil
}

// ParallelConn runs the runner in its own isolated context, serves it over
// a named link and keeps a Poller ticking it.
type ParallelConn struct {
	runner *Runner
	link   *channel.TwoWay
	poller *Poller
	logger *slog.Logger

	loop       *isolate.Future
	pollerLoop *isolate.Future

	mu sync.Mutex
	// stale counts replies owed to callers that gave up waiting.
	stale int

	closeOnce sync.Once
	closeErr  error
}

// Ensure ParallelConn implements Conn.
var _ Conn = (*ParallelConn)(nil)

// StartParallel creates a runner from opts and starts serving it.
func StartParallel(opts Options, pollInterval time.Duration) (*ParallelConn, error) {
	opts.Inline = false
	r, err := New(opts)
	if err != nil {
		return nil, err
	}

	link, err := r.hub.Make(LinkName(r.id), channel.DefaultCapacity)
	if err != nil {
		r.shutdown()
		return nil, fmt.Errorf("runner: bind link: %w", err)
	}
	pollLink, err := r.hub.Make(PollerLinkName(r.id), 1)
	if err != nil {
		_ = link.Close()
		r.shutdown()
		return nil, fmt.Errorf("runner: bind poller link: %w", err)
	}

	c := &ParallelConn{
		runner: r,
		link:   link,
		poller: NewPoller(pollLink, pollInterval, opts.Logger),
		logger: r.logger,
	}
	// The runner attaches to its links from inside its own context.
	c.loop = isolate.Run(context.Background(), func(ctx context.Context) (any, error) {
		serverLink, err := r.hub.OpenWait(ctx, link.Name())
		if err != nil {
			return nil, err
		}
		serverPoll, err := r.hub.OpenWait(ctx, pollLink.Name())
		if err != nil {
			return nil, err
		}
		return nil, r.Listen(ctx, serverLink, serverPoll)
	})
	c.pollerLoop = isolate.Run(context.Background(), func(ctx context.Context) (any, error) {
		return nil, c.poller.Start(ctx)
	})
	return c, nil
}

func (c *ParallelConn) Mode() config.Mode { return config.ModeParallel }

// Call sends cmd and waits for the reply. Calls are serialized so every
// reply reaches the caller that sent the command.
func (c *ParallelConn) Call(ctx context.Context, cmd protocol.Command) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for c.stale > 0 {
		if _, err := c.link.Receive(context.Background()); err != nil {
			return nil, closedError(err)
		}
		c.stale--
	}

	if err := c.link.Send(protocol.NewEnvelope(cmd)); err != nil {
		return nil, closedError(err)
	}

	reply, err := c.link.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.stale++
			return nil, err
		}
		return nil, closedError(err)
	}
	return unwrapReply(reply)
}

func closedError(err error) error {
	if errors.Is(err, channel.ErrClosed) {
		return fmt.Errorf("%w: %v", api.ErrSchedulerClosed, err)
	}
	return err
}

// Close stops the poller, tells the runner to close and waits for its
// loop to exit.
func (c *ParallelConn) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		_ = c.poller.Stop()

		if _, err := c.Call(ctx, protocol.Close{}); err != nil && !errors.Is(err, api.ErrSchedulerClosed) {
			c.closeErr = err
		}

		select {
		case <-c.loop.Wait():
		case <-ctx.Done():
			if c.closeErr == nil {
				c.closeErr = ctx.Err()
			}
		}
		_ = c.link.Close()
		c.logger.Debug("connection closed")
	})
	return c.closeErr
}

// InlineConn dispatches commands to the runner on the caller's goroutine.
type InlineConn struct {
	runner *Runner
	mu     sync.Mutex
}

// Ensure InlineConn implements Conn.
var _ Conn = (*InlineConn)(nil)

// StartInline creates a runner from opts for inline dispatch.
func StartInline(opts Options) (*InlineConn, error) {
	opts.Inline = true
	r, err := New(opts)
	if err != nil {
		return nil, err
	}
	return &InlineConn{runner: r}, nil
}

func (c *InlineConn) Mode() config.Mode { return config.ModeInline }

// Call runs cmd to completion before returning. Worker logic started by
// the command must not call back into the same scheduler.
func (c *InlineConn) Call(ctx context.Context, cmd protocol.Command) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return unwrapReply(c.runner.Dispatch(protocol.NewEnvelope(cmd)))
}

func (c *InlineConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runner.closed {
		return nil
	}
	_, err := unwrapReply(c.runner.Dispatch(protocol.NewEnvelope(protocol.Close{})))
	return err
}
