// Package channel provides named two-way channels used by the scheduler,
// the runner and isolated contexts to talk without sharing state.
//
// A Hub is the namespace of channel pairs. One side creates a pair with
// Make, the other attaches with Open; the opener's directions are swapped
// so that what one side sends, the other receives.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrExists   = errors.New("channel already exists")
	ErrNotExist = errors.New("channel does not exist")
	ErrClosed   = errors.New("channel is closed")
)

// DefaultCapacity is the buffer size of each direction.
const DefaultCapacity = 64

type pair struct {
	up   chan any
	down chan any

	done      chan struct{}
	closeOnce sync.Once
}

func (p *pair) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Hub holds named channel pairs.
type Hub struct {
	mu    sync.Mutex
	pairs map[string]*pair
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{pairs: make(map[string]*pair)}
}

var defaultHub = NewHub()

// DefaultHub returns the process-wide Hub.
func DefaultHub() *Hub {
	return defaultHub
}

// Make binds a fresh pair under name and returns the creator side.
func (h *Hub) Make(name string, capacity int) (*TwoWay, error) {
	if capacity < 0 {
		capacity = 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.pairs[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	p := &pair{
		up:   make(chan any, capacity),
		down: make(chan any, capacity),
		done: make(chan struct{}),
	}
	h.pairs[name] = p

	return &TwoWay{hub: h, name: name, p: p, in: p.up, out: p.down}, nil
}

// Open attaches to the pair bound under name.
func (h *Hub) Open(name string) (*TwoWay, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.pairs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	return &TwoWay{hub: h, name: name, p: p, in: p.down, out: p.up}, nil
}

// OpenWait retries Open until the pair exists or ctx is done.
func (h *Hub) OpenWait(ctx context.Context, name string) (*TwoWay, error) {
	for {
		c, err := h.Open(name)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNotExist) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-retryDelay():
		}
	}
}

func (h *Hub) release(name string, p *pair) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.pairs[name]; ok && cur == p {
		delete(h.pairs, name)
	}
}
