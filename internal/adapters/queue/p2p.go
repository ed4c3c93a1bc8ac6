package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

// ErrClosed is returned to the sender once the receiver has gone away, and
// to the receiver once the sender has closed and the queue is drained.
var ErrClosed = errors.New("uplink queue closed")

// P2P is a bounded FIFO with exactly one sender and one receiver. It never
// drops: a full queue suspends the sender until the receiver makes room.
type P2P struct {
	ch           chan domain.Packet
	senderDone   chan struct{}
	receiverDone chan struct{}
	senderOnce   sync.Once
	receiverOnce sync.Once
}

// NewP2P returns the two ends of a queue holding up to capacity packets.
func NewP2P(capacity int) (*P2PSender, *P2PReceiver) {
	if capacity <= 0 {
		panic(fmt.Sprintf("queue: capacity must be positive, got %d", capacity))
	}
	q := &P2P{
		ch:           make(chan domain.Packet, capacity),
		senderDone:   make(chan struct{}),
		receiverDone: make(chan struct{}),
	}
	return &P2PSender{q: q}, &P2PReceiver{q: q}
}

func (q *P2P) Len() int { return len(q.ch) }
func (q *P2P) Cap() int { return cap(q.ch) }

type P2PSender struct {
	q *P2P
}

// Publish enqueues p, blocking while the queue is full.
func (s *P2PSender) Publish(ctx context.Context, p domain.Packet) error {
	select {
	case <-s.q.receiverDone:
		return ErrClosed
	case <-s.q.senderDone:
		return ErrClosed
	default:
	}
	select {
	case s.q.ch <- p:
		return nil
	case <-s.q.receiverDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals that no further packets will be sent. Packets already
// queued are still delivered.
func (s *P2PSender) Close() {
	s.q.senderOnce.Do(func() { close(s.q.senderDone) })
}

func (s *P2PSender) Len() int { return s.q.Len() }

type P2PReceiver struct {
	q *P2P
}

// Recv returns the oldest queued packet, blocking until one is available.
func (r *P2PReceiver) Recv(ctx context.Context) (domain.Packet, error) {
	select {
	case <-r.q.receiverDone:
		return nil, ErrClosed
	default:
	}
	select {
	case p := <-r.q.ch:
		return p, nil
	default:
	}
	select {
	case p := <-r.q.ch:
		return p, nil
	case <-r.q.senderDone:
		select {
		case p := <-r.q.ch:
			return p, nil
		default:
			return nil, ErrClosed
		}
	case <-r.q.receiverDone:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close detaches the receiver; any blocked or later Publish fails.
func (r *P2PReceiver) Close() {
	r.q.receiverOnce.Do(func() { close(r.q.receiverDone) })
}

func (r *P2PReceiver) Len() int { return r.q.Len() }

var (
	_ ports.Endpoint = (*P2PSender)(nil)
	_ ports.Source   = (*P2PReceiver)(nil)
)
