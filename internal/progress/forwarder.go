// Package progress delivers progress messages from workers and the runner
// to an api.ProgressSink over a dedicated channel, and provides a
// log-based aggregator sink.
package progress

import (
	"sync"

	"github.com/petrijr/parallel/pkg/api"
)

type message interface{ deliver(api.ProgressSink) }

type registration struct {
	name  string
	steps int
}

type action struct {
	name api.ProgressAction
	args []any
}

type statsReport struct {
	contextID string
	memory    uint64
}

func (m registration) deliver(s api.ProgressSink) { s.RegisterWorker(m.name, m.steps) }
func (m action) deliver(s api.ProgressSink)       { s.Action(m.name, m.args...) }
func (m statsReport) deliver(s api.ProgressSink)  { s.StatsReport(m.contextID, m.memory) }

// Forwarder is an api.ProgressSink that queues messages and delivers them
// to the target sink from its own goroutine, so callers never wait on
// rendering. Messages sent after Close are dropped.
type Forwarder struct {
	target api.ProgressSink
	inbox  chan message

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewForwarder starts a forwarder delivering to target with the given
// buffer size.
func NewForwarder(target api.ProgressSink, buffer int) *Forwarder {
	if target == nil {
		target = api.NoopProgressSink{}
	}
	if buffer <= 0 {
		buffer = 256
	}
	f := &Forwarder{
		target: target,
		inbox:  make(chan message, buffer),
		done:   make(chan struct{}),
	}
	go f.loop()
	return f
}

// Ensure Forwarder implements api.ProgressSink.
var _ api.ProgressSink = (*Forwarder)(nil)

func (f *Forwarder) loop() {
	defer close(f.done)
	for m := range f.inbox {
		m.deliver(f.target)
	}
}

func (f *Forwarder) send(m message) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	f.inbox <- m
}

func (f *Forwarder) RegisterWorker(name string, totalSteps int) {
	f.send(registration{name: name, steps: totalSteps})
}

func (f *Forwarder) Action(name api.ProgressAction, args ...any) {
	f.send(action{name: name, args: args})
}

func (f *Forwarder) StatsReport(contextID string, memoryBytes uint64) {
	f.send(statsReport{contextID: contextID, memory: memoryBytes})
}

// Close stops accepting messages and waits until queued ones were
// delivered.
func (f *Forwarder) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return
	}
	f.closed = true
	close(f.inbox)
	f.mu.Unlock()
	<-f.done
}
