package orbisat

import (
	"context"
	"errors"
	"fmt"

	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/bus"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
	"github.com/orbisat/orbisat/internal/telemetry"
)

// ErrProducerClosed is returned by Publish after Close.
var ErrProducerClosed = errors.New("orbisat: external producer closed")

// ExternalProducer lets host code publish measurements for one DeviceID onto
// the runtime bus. Packets are stamped at publish like those of the built-in
// producers and reach every consumer, the durable log included.
type ExternalProducer struct {
	sender *telemetry.Sender
	pub    *bus.Publisher
	obs    ports.Observability
}

// ExternalProducer registers a new publisher for device. The bus stays open
// until the producer is closed, so callers must Close it when done.
func (r *Runtime) ExternalProducer(device DeviceID) (*ExternalProducer, error) {
	if !device.Valid() || device == domain.DeviceUnknown {
		return nil, fmt.Errorf("external producer: invalid device %s", device)
	}
	pub := r.bus.Publisher()
	return &ExternalProducer{
		sender: telemetry.NewSender(device, pub, telemetry.WithClock(r.clock)),
		pub:    pub,
		obs:    r.obs,
	}, nil
}

func (p *ExternalProducer) Device() DeviceID { return p.sender.Device() }

// Publish stamps payload and hands it to the bus. It never blocks on slow
// consumers.
func (p *ExternalProducer) Publish(ctx context.Context, payload []byte) error {
	if err := p.sender.SendBytes(ctx, payload); err != nil {
		if errors.Is(err, bus.ErrPublisherClosed) {
			return ErrProducerClosed
		}
		return err
	}
	p.obs.IncCounter(observability.MetricPacketsPublished, p.Device().String(), 1)
	return nil
}

// Close releases the publisher. Safe to call more than once.
func (p *ExternalProducer) Close() {
	p.pub.Close()
}
