package bus

import (
	"context"

	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

// Subscription is one consumer's cursor into the bus. It must be used by a
// single goroutine.
type Subscription struct {
	bus    *Bus
	next   uint64
	lagged uint64
	closed bool
}

// Recv returns the next packet for this subscription, blocking until one
// is published. It returns a *LaggedError when packets were skipped,
// ErrClosed once the bus is closed and drained, or ctx.Err().
func (s *Subscription) Recv(ctx context.Context) (domain.Packet, error) {
	b := s.bus
	for {
		b.mu.Lock()
		if s.closed {
			b.mu.Unlock()
			return nil, ErrSubscriptionClosed
		}

		var oldest uint64
		if b.tail > b.size {
			oldest = b.tail - b.size
		}
		if s.next < oldest {
			skipped := oldest - s.next
			s.next = oldest
			s.lagged += skipped
			b.lagged += skipped
			b.mu.Unlock()
			return nil, &LaggedError{Skipped: skipped}
		}
		if s.next < b.tail {
			p := b.ring[s.next%b.size]
			s.next++
			b.mu.Unlock()
			return p, nil
		}
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Lagged is the total number of packets this subscription has skipped.
func (s *Subscription) Lagged() uint64 {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.lagged
}

// Pending reports how many retained packets are waiting for this
// subscription, capped at the ring capacity.
func (s *Subscription) Pending() int {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.tail - s.next
	if n > b.size {
		n = b.size
	}
	return int(n)
}

// Close detaches the subscription from the bus.
func (s *Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(b.subs, s)
	b.wakeLocked()
}

var _ ports.Source = (*Subscription)(nil)
