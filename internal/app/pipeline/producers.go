package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
	"github.com/orbisat/orbisat/internal/supervise"
	"github.com/orbisat/orbisat/internal/telemetry"
)

// SensorPoller reads one combined environmental measurement per tick and
// publishes pressure, temperature and humidity as three packets, each a
// single little-endian float32.
func SensorPoller(drv ports.Driver, pressure, temperature, humidity *telemetry.Sender, interval time.Duration, deps Deps) supervise.Body {
	deps = deps.withDefaults()
	senders := []*telemetry.Sender{pressure, temperature, humidity}
	return func(ctx context.Context) error {
		return pollEvery(ctx, deps.Clock, interval, func(ctx context.Context) error {
			raw, err := readDriver(ctx, drv, deps)
			if err != nil {
				return fmt.Errorf("%s: %w", drv.Name(), err)
			}
			if len(raw) != domain.EnvironmentSize {
				return fmt.Errorf("%s: %d-byte reading, expected %d", drv.Name(), len(raw), domain.EnvironmentSize)
			}
			for i, s := range senders {
				if err := send(ctx, s, raw[i*4:i*4+4], deps.Obs); err != nil {
					return err
				}
			}
			return nil
		})
	}
}

// DriverPoller publishes each driver reading unchanged. size, when
// positive, is the exact payload length the driver must produce.
func DriverPoller(drv ports.Driver, s *telemetry.Sender, size int, interval time.Duration, deps Deps) supervise.Body {
	deps = deps.withDefaults()
	return func(ctx context.Context) error {
		return pollEvery(ctx, deps.Clock, interval, func(ctx context.Context) error {
			raw, err := readDriver(ctx, drv, deps)
			if err != nil {
				return fmt.Errorf("%s: %w", drv.Name(), err)
			}
			if size > 0 && len(raw) != size {
				return fmt.Errorf("%s: %d-byte reading, expected %d", drv.Name(), len(raw), size)
			}
			return send(ctx, s, raw, deps.Obs)
		})
	}
}

// Heartbeat publishes a status packet every interval carrying a sequence
// number, the uptime and the boot id.
func Heartbeat(s *telemetry.Sender, interval time.Duration, bootID uuid.UUID, deps Deps) supervise.Body {
	deps = deps.withDefaults()
	return func(ctx context.Context) error {
		started := deps.Clock.Now()
		var seq uint64
		return pollEvery(ctx, deps.Clock, interval, func(ctx context.Context) error {
			payload, err := domain.Heartbeat{
				Seq:      seq,
				UptimeMS: uint64(deps.Clock.Now().Sub(started).Milliseconds()),
				BootID:   bootID[:],
			}.Payload()
			if err != nil {
				return err
			}
			if err := s.Send(ctx, payload); err != nil {
				return err
			}
			deps.Obs.IncCounter(observability.MetricPacketsPublished, s.Device().String(), 1)
			seq++
			return nil
		})
	}
}
