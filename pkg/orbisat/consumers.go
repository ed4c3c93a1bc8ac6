package orbisat

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrChannelConsumerClosed is returned when a channel consumer receives a
// packet after its owner closed it. The runtime detaches such a consumer
// without failing.
var ErrChannelConsumerClosed = errors.New("orbisat: channel consumer closed")

// Consumer receives every telemetry packet observed on the bus. A returned
// error stops the runtime.
type Consumer interface {
	Consume(ctx context.Context, p TmPacket) error
	Name() string
}

// PacketHandler is invoked once per telemetry packet.
type PacketHandler func(TmPacket) error

// finisher is implemented by consumers that release resources once their
// task has returned.
type finisher interface{ finish() }

// NewCallbackConsumer adapts a PacketHandler into a Consumer so callers can
// plug arbitrary functions without defining structs.
func NewCallbackConsumer(name string, fn PacketHandler) Consumer {
	if name == "" {
		name = "callback"
	}
	return &callbackConsumer{name: name, fn: fn}
}

// NewChannelConsumer exposes packets via a channel; it returns the
// consumer, the read-only channel, and a close function that the caller
// should invoke when it stops reading. The channel is closed once the
// runtime has stopped delivering to it.
func NewChannelConsumer(name string, buffer int) (Consumer, <-chan TmPacket, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan TmPacket, buffer)
	c := &channelConsumer{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return c, ch, c.close
}

type callbackConsumer struct {
	name string
	fn   PacketHandler
}

func (c *callbackConsumer) Consume(_ context.Context, p TmPacket) error {
	if c.fn == nil {
		return fmt.Errorf("callback consumer %q: nil handler", c.name)
	}
	return c.fn(p)
}

func (c *callbackConsumer) Name() string { return c.name }

type channelConsumer struct {
	name      string
	ch        chan TmPacket
	closed    chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
}

func (c *channelConsumer) Consume(ctx context.Context, p TmPacket) error {
	select {
	case <-c.closed:
		return ErrChannelConsumerClosed
	default:
	}

	select {
	case <-c.closed:
		return ErrChannelConsumerClosed
	case <-ctx.Done():
		return ctx.Err()
	case c.ch <- p:
		return nil
	}
}

func (c *channelConsumer) Name() string { return c.name }

func (c *channelConsumer) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// finish runs on the delivering goroutine after its last send.
func (c *channelConsumer) finish() {
	c.doneOnce.Do(func() { close(c.ch) })
}

var (
	_ Consumer = (*callbackConsumer)(nil)
	_ Consumer = (*channelConsumer)(nil)
	_ finisher = (*channelConsumer)(nil)
)
