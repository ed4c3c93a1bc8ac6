// Package bus implements the fan-out telemetry bus.
//
// The bus keeps a fixed-capacity ring of the most recent packets. Every
// subscription owns an independent cursor into that ring. Publishing never
// blocks: a subscription that falls more than the ring capacity behind
// loses the overwritten packets and is told exactly how many it skipped on
// its next Recv. A stalled consumer therefore never stalls a producer.
//
// Packets published while nobody is subscribed are dropped; a new
// subscription starts at "now" and never observes earlier packets.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

var (
	// ErrClosed is returned by Recv once every publisher has gone away and
	// the subscription has consumed all retained packets.
	ErrClosed = errors.New("bus closed")

	// ErrPublisherClosed is returned when publishing through a released
	// Publisher handle.
	ErrPublisherClosed = errors.New("bus publisher closed")

	// ErrSubscriptionClosed is returned by Recv after Close.
	ErrSubscriptionClosed = errors.New("bus subscription closed")
)

// LaggedError reports packets that were overwritten before a subscription
// could read them. The subscription has been advanced to the oldest
// retained packet.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("bus subscription lagged by %d packets", e.Skipped)
}

// IsLagged reports whether err is a LaggedError and returns the skip count.
func IsLagged(err error) (uint64, bool) {
	var lag *LaggedError
	if errors.As(err, &lag) {
		return lag.Skipped, true
	}
	return 0, false
}

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	Capacity    int
	Published   uint64
	Dropped     uint64
	Lagged      uint64
	Subscribers int
	Publishers  int
	Closed      bool
}

type Bus struct {
	mu     sync.Mutex
	ring   []domain.Packet
	size   uint64
	tail   uint64
	notify chan struct{}

	subs       map[*Subscription]struct{}
	publishers int
	closed     bool

	published uint64
	dropped   uint64
	lagged    uint64
}

// New creates a bus retaining up to capacity packets.
func New(capacity int) *Bus {
	if capacity <= 0 {
		panic(fmt.Sprintf("bus: capacity must be positive, got %d", capacity))
	}
	return &Bus{
		ring:   make([]domain.Packet, capacity),
		size:   uint64(capacity),
		notify: make(chan struct{}),
		subs:   make(map[*Subscription]struct{}),
	}
}

// Publisher returns a new write handle. The bus closes when the last
// handle is closed.
func (b *Bus) Publisher() *Publisher {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishers++
	return &Publisher{bus: b}
}

// Subscribe returns a subscription positioned after the newest packet.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Subscription{bus: b, next: b.tail}
	b.subs[s] = struct{}{}
	return s
}

// Close marks the bus closed regardless of outstanding publishers.
// Subscriptions still drain retained packets before seeing ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
}

func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Capacity:    int(b.size),
		Published:   b.published,
		Dropped:     b.dropped,
		Lagged:      b.lagged,
		Subscribers: len(b.subs),
		Publishers:  b.publishers,
		Closed:      b.closed,
	}
}

func (b *Bus) publish(p domain.Packet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if len(b.subs) == 0 {
		b.dropped++
		return nil
	}
	b.ring[b.tail%b.size] = p
	b.tail++
	b.published++
	b.wakeLocked()
	return nil
}

func (b *Bus) closeLocked() {
	if b.closed {
		return
	}
	b.closed = true
	b.wakeLocked()
}

func (b *Bus) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// Publisher is a reference-counted write handle onto the bus.
type Publisher struct {
	bus  *Bus
	once sync.Once
	mu   sync.Mutex
	done bool
}

// Publish delivers p to every live subscription without blocking. It does
// not fail for lack of subscribers.
func (p *Publisher) Publish(_ context.Context, pkt domain.Packet) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done {
		return ErrPublisherClosed
	}
	return p.bus.publish(pkt)
}

// Close releases the handle. Safe to call more than once.
func (p *Publisher) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.done = true
		p.mu.Unlock()

		b := p.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		b.publishers--
		if b.publishers <= 0 {
			b.closeLocked()
		}
	})
}

var _ ports.Endpoint = (*Publisher)(nil)
