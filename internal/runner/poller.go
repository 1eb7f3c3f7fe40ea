package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/parallel/internal/channel"
	"github.com/petrijr/parallel/internal/protocol"
	"github.com/petrijr/parallel/pkg/api"
)

// Poller sends an Update command to the runner on a fixed interval so
// pending tasks are admitted even while the client is busy elsewhere.
type Poller struct {
	link     *channel.TwoWay
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewPoller creates a poller talking to the runner over link.
func NewPoller(link *channel.TwoWay, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 25 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		link:     link,
		interval: interval,
		logger:   logger.With("component", "poller"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the polling loop. Blocks until ctx is cancelled, Stop is
// called or the link is closed.
func (p *Poller) Start(ctx context.Context) error {
	defer close(p.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	p.logger.Debug("poller started", "poll_interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("poller stopping")
			return nil
		case <-p.link.Done():
			p.logger.Debug("poller stopping (link closed)")
			return nil
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				if ctx.Err() != nil || p.link.Closed() {
					return nil
				}
				p.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop ends the loop and waits for the current tick to finish.
func (p *Poller) Stop() error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
	return nil
}

// Tick sends one Update and waits for the runner's reply.
func (p *Poller) Tick(ctx context.Context) error {
	if err := p.link.Send(protocol.NewEnvelope(protocol.Update{})); err != nil {
		return err
	}
	reply, err := p.link.Receive(ctx)
	if err != nil {
		return err
	}
	if pe, ok := reply.(*api.ParallelError); ok {
		return pe
	}
	return nil
}
