package channel

import (
	"context"
	"time"
)

func retryDelay() <-chan time.Time {
	return time.After(time.Millisecond)
}

// TwoWay is one side of a request/response link. Send never waits for the
// peer to receive unless the buffer is full; Receive blocks.
type TwoWay struct {
	hub  *Hub
	name string
	p    *pair

	in  <-chan any
	out chan<- any
}

func (c *TwoWay) Name() string { return c.name }

// C exposes the receiving direction for use in select statements.
func (c *TwoWay) C() <-chan any { return c.in }

// Done is closed once either side closed the link.
func (c *TwoWay) Done() <-chan struct{} { return c.p.done }

// Send queues v for the peer.
func (c *TwoWay) Send(v any) error {
	select {
	case <-c.p.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- v:
		return nil
	case <-c.p.done:
		return ErrClosed
	}
}

// Receive waits for the next value from the peer. Values queued before
// the link was closed are still delivered.
func (c *TwoWay) Receive(ctx context.Context) (any, error) {
	select {
	case v := <-c.in:
		return v, nil
	default:
	}

	select {
	case v := <-c.in:
		return v, nil
	case <-c.p.done:
		select {
		case v := <-c.in:
			return v, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release acknowledges a successful start by sending token to the peer.
func (c *TwoWay) Release(token any) error {
	return c.Send(token)
}

// Close ends the link for both sides and unbinds its name. It is safe to
// call more than once.
func (c *TwoWay) Close() error {
	c.p.close()
	c.hub.release(c.name, c.p)
	return nil
}

// Closed reports whether the link was closed.
func (c *TwoWay) Closed() bool {
	select {
	case <-c.p.done:
		return true
	default:
		return false
	}
}
