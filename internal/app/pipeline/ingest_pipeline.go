package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

// IngestStats summarises one ground ingest run.
type IngestStats struct {
	Packets uint64
	Batches uint64
}

// RunIngest reads decoded packets from src until io.EOF (or a closed
// source) and writes them to every sink in batches of up to batchSize.
// A sink failure aborts the run; nothing is retried.
func RunIngest(ctx context.Context, src ports.Source, sinks []ports.Sink, batchSize int, obs ports.Observability) (IngestStats, error) {
	if obs == nil {
		obs = observability.Nop{}
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	var (
		stats IngestStats
		batch = make([]domain.TmPacket, 0, batchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		for _, sink := range sinks {
			start := time.Now()
			if err := sink.WriteBatch(batch); err != nil {
				obs.LogError("sink_write_failed", err, ports.Field{Key: "sink", Value: sink.Name()})
				return fmt.Errorf("%s: %w", sink.Name(), err)
			}
			obs.ObserveLatency(observability.HistGroundSink, time.Since(start).Seconds())
			obs.IncCounter(observability.MetricGroundIngested, sink.Name(), float64(len(batch)))
		}
		stats.Packets += uint64(len(batch))
		stats.Batches++
		batch = batch[:0]
		return nil
	}

	for {
		p, err := src.Recv(ctx)
		if errors.Is(err, io.EOF) || (err != nil && isClosed(err)) {
			return stats, flush()
		}
		if err != nil {
			return stats, err
		}
		tm, ok := p.(domain.TmPacket)
		if !ok {
			continue
		}
		batch = append(batch, tm)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
}
