package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/pflag"

	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/adapters/sink"
	"github.com/orbisat/orbisat/internal/app/config"
	"github.com/orbisat/orbisat/internal/app/pipeline"
	"github.com/orbisat/orbisat/internal/ports"
)

func ingestCommand(args []string) error {
	fs := pflag.NewFlagSet("ingest", pflag.ContinueOnError)
	var sf sourceFlags
	sf.addFlags(fs)
	cfgPath := fs.StringP("config", "c", "", "configuration file providing the ground section")
	timescale := fs.String("timescale", "", "TimescaleDB connection string (overrides ground.timescale.conn_string)")
	table := fs.String("table", "", "hypertable name (overrides ground.timescale.table)")
	natsURL := fs.String("nats", "", "NATS server URL (overrides ground.nats.url)")
	natsPrefix := fs.String("nats-prefix", "", "subject prefix (overrides ground.nats.prefix)")
	batch := fs.Int("batch", 0, "packets per sink write (overrides ground.batch_size)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	g := cfg.Ground
	if fs.Changed("timescale") {
		g.Timescale.ConnString = *timescale
	}
	if fs.Changed("table") {
		g.Timescale.Table = *table
	}
	if fs.Changed("nats") {
		g.NATS.URL = *natsURL
	}
	if fs.Changed("nats-prefix") {
		g.NATS.Prefix = *natsPrefix
	}
	if fs.Changed("batch") {
		g.BatchSize = *batch
	}

	logger, logCloser, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser.Close()
	obs := observability.NewPromObs(logger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sinks, closers, err := openSinks(ctx, g)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if cerr := c.Close(); cerr != nil {
				obs.LogError("sink_close_failed", cerr)
			}
		}
	}()

	srcs, err := sf.open(ctx, fs.Args())
	if err != nil {
		return err
	}
	defer closeSources(srcs)

	var total pipeline.IngestStats
	for _, s := range srcs {
		start := time.Now()
		st, err := pipeline.RunIngest(ctx, s.src, sinks, g.BatchSize, obs)
		total.Packets += st.Packets
		total.Batches += st.Batches
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		obs.LogInfo("ingest_source_done",
			ports.Field{Key: "source", Value: s.name},
			ports.Field{Key: "packets", Value: st.Packets},
			ports.Field{Key: "batches", Value: st.Batches},
			ports.Field{Key: "torn", Value: s.torn != nil && s.torn()},
			ports.Field{Key: "elapsed", Value: time.Since(start).String()})
		if ctx.Err() != nil {
			break
		}
	}
	fmt.Printf("ingested %d packets in %d batches into %d sink(s)\n", total.Packets, total.Batches, len(sinks))
	return nil
}

// openSinks connects every configured ground sink.
func openSinks(ctx context.Context, g config.GroundConfig) ([]ports.Sink, []io.Closer, error) {
	var (
		sinks   []ports.Sink
		closers []io.Closer
	)
	fail := func(err error) ([]ports.Sink, []io.Closer, error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, nil, err
	}

	if g.Timescale.ConnString != "" {
		db, err := sql.Open("postgres", g.Timescale.ConnString)
		if err != nil {
			return fail(fmt.Errorf("timescale: %w", err))
		}
		closers = append(closers, db)
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			return fail(fmt.Errorf("timescale ping: %w", err))
		}
		sinks = append(sinks, sink.NewTimescaleSink(db, g.Timescale.Table))
	}
	if g.NATS.URL != "" {
		ns, err := sink.ConnectNATS(g.NATS.URL, g.NATS.Prefix)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, ns)
		sinks = append(sinks, ns)
	}
	if len(sinks) == 0 {
		return fail(errors.New("no sink configured: pass --timescale and/or --nats"))
	}
	return sinks, closers, nil
}
