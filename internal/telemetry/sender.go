// Package telemetry stamps raw instrument measurements into packets.
package telemetry

import (
	"context"

	"github.com/orbisat/orbisat/internal/clock"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

// Sender publishes payloads for one fixed device onto an endpoint, either
// the fan-out bus or the point-to-point uplink queue.
type Sender struct {
	device   domain.DeviceID
	endpoint ports.Endpoint
	clock    clock.Clock
}

type SenderOption func(*Sender)

func WithClock(c clock.Clock) SenderOption {
	return func(s *Sender) {
		if c != nil {
			s.clock = c
		}
	}
}

func NewSender(device domain.DeviceID, endpoint ports.Endpoint, opts ...SenderOption) *Sender {
	s := &Sender{device: device, endpoint: endpoint, clock: clock.Real()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Sender) Device() domain.DeviceID { return s.device }

// Send stamps payload with the sender's device and the current time and
// publishes it. The timestamp is taken at publish, not at sampling.
func (s *Sender) Send(ctx context.Context, payload domain.Payload) error {
	return s.endpoint.Publish(ctx, domain.TmPacket{
		Device:    s.device,
		Timestamp: domain.TimestampFrom(s.clock.Now()),
		Payload:   payload,
	})
}

// SendBytes builds a payload from b and sends it.
func (s *Sender) SendBytes(ctx context.Context, b []byte) error {
	p, err := domain.NewPayload(b)
	if err != nil {
		return err
	}
	return s.Send(ctx, p)
}
