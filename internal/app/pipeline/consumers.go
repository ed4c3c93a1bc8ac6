package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/adapters/queue"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
	"github.com/orbisat/orbisat/internal/supervise"
)

type flusher interface{ Flush() error }

type pending interface{ Pending() int }

// LogWriter appends every packet seen on src to the durable log. Buffered
// frames are flushed whenever the subscription has caught up.
func LogWriter(src ports.Source, log ports.PacketLog, deps Deps) supervise.Body {
	deps = deps.withDefaults()
	fl, _ := log.(flusher)
	pend, _ := src.(pending)
	return func(ctx context.Context) (err error) {
		if fl != nil {
			defer func() {
				if ferr := fl.Flush(); ferr != nil && err == nil {
					err = fmt.Errorf("log flush: %w", ferr)
				}
			}()
		}
		return consume(ctx, "log-writer", src, deps.Obs, func(_ context.Context, p domain.Packet) error {
			if err := log.Append(p); err != nil {
				return fmt.Errorf("log append: %w", err)
			}
			deps.Obs.IncCounter(observability.MetricLogRecords, "", 1)
			deps.Obs.IncCounter(observability.MetricLogBytes, "", float64(domain.EncodedLen(p)))
			if fl != nil && (pend == nil || pend.Pending() == 0) {
				if err := fl.Flush(); err != nil {
					return fmt.Errorf("log flush: %w", err)
				}
			}
			return nil
		})
	}
}

// UplinkForwarder moves packets from the lossy bus into the lossless
// uplink queue, suspending while the queue is full.
func UplinkForwarder(src ports.Source, dst ports.Endpoint, deps Deps) supervise.Body {
	deps = deps.withDefaults()
	return func(ctx context.Context) error {
		return consume(ctx, "uplink-forwarder", src, deps.Obs, func(ctx context.Context, p domain.Packet) error {
			if err := dst.Publish(ctx, p); err != nil {
				if errors.Is(err, queue.ErrClosed) {
					return fmt.Errorf("uplink receiver gone: %w", err)
				}
				return err
			}
			return nil
		})
	}
}

// UplinkTransmitter drains the uplink queue onto the transport, one encoded
// frame per write.
func UplinkTransmitter(src ports.Source, tr ports.Transport, deps Deps) supervise.Body {
	deps = deps.withDefaults()
	var buf [domain.MaxEncodedSize]byte
	return func(ctx context.Context) error {
		return consume(ctx, "uplink-transmitter", src, deps.Obs, func(_ context.Context, p domain.Packet) error {
			frame, err := domain.Encode(p, buf[:])
			if err != nil {
				return err
			}
			start := time.Now()
			if err := tr.WriteFrame(frame); err != nil {
				return fmt.Errorf("%s: %w", tr.Name(), err)
			}
			deps.Obs.ObserveLatency(observability.HistUplinkWrite, time.Since(start).Seconds())
			deps.Obs.IncCounter(observability.MetricUplinkFrames, "", 1)
			deps.Obs.IncCounter(observability.MetricUplinkBytes, "", float64(len(frame)))
			return nil
		})
	}
}

// Forward hands every packet on src to fn. It backs host-supplied
// consumers attached through the embedding API.
func Forward(task string, src ports.Source, fn func(context.Context, domain.Packet) error, deps Deps) supervise.Body {
	deps = deps.withDefaults()
	return func(ctx context.Context) error {
		return consume(ctx, task, src, deps.Obs, fn)
	}
}
