// Package pipeline holds the supervised task bodies that move telemetry:
// producers read instruments and publish through senders, consumers drain
// a bus subscription or the uplink queue into a sink.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/adapters/queue"
	"github.com/orbisat/orbisat/internal/bus"
	"github.com/orbisat/orbisat/internal/clock"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
	"github.com/orbisat/orbisat/internal/telemetry"
)

// Deps are the ambient collaborators shared by every task.
type Deps struct {
	Clock clock.Clock
	Obs   ports.Observability
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Obs == nil {
		d.Obs = observability.Nop{}
	}
	return d
}

// pollEvery calls fn immediately and then once per tick until fn fails or
// ctx is cancelled.
func pollEvery(ctx context.Context, clk clock.Clock, interval time.Duration, fn func(context.Context) error) error {
	t := clk.NewTicker(interval)
	defer t.Stop()
	for {
		if err := fn(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func readDriver(ctx context.Context, drv ports.Driver, deps Deps) ([]byte, error) {
	start := time.Now()
	raw, err := drv.Read(ctx)
	deps.Obs.ObserveLatency(observability.HistInstrumentRead, time.Since(start).Seconds())
	return raw, err
}

func send(ctx context.Context, s *telemetry.Sender, b []byte, obs ports.Observability) error {
	if err := s.SendBytes(ctx, b); err != nil {
		return err
	}
	obs.IncCounter(observability.MetricPacketsPublished, s.Device().String(), 1)
	return nil
}

// consume drains src into fn. Lag is reported and skipped over; a closed
// source ends the loop cleanly.
func consume(ctx context.Context, task string, src ports.Source, obs ports.Observability, fn func(context.Context, domain.Packet) error) error {
	for {
		p, err := src.Recv(ctx)
		if err != nil {
			if skipped, ok := bus.IsLagged(err); ok {
				obs.LogWarn("bus_lagged",
					ports.Field{Key: "task", Value: task},
					ports.Field{Key: "skipped", Value: skipped})
				obs.IncCounter(observability.MetricBusLagged, task, float64(skipped))
				continue
			}
			if isClosed(err) {
				return nil
			}
			return err
		}
		if err := fn(ctx, p); err != nil {
			return err
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, bus.ErrClosed) ||
		errors.Is(err, bus.ErrSubscriptionClosed) ||
		errors.Is(err, queue.ErrClosed)
}
