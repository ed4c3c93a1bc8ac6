package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/orbisat/orbisat/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), reg)

	obs.IncCounter(MetricPacketsPublished, "pressure", 3)
	if got := testutil.ToFloat64(obs.labelled[MetricPacketsPublished].WithLabelValues("pressure")); got != 3 {
		t.Fatalf("expected published{pressure} 3, got %f", got)
	}

	obs.IncCounter(MetricLogRecords, "", 5)
	if got := testutil.ToFloat64(obs.counters[MetricLogRecords]); got != 5 {
		t.Fatalf("expected log records 5, got %f", got)
	}

	obs.SetGauge(GaugeUplinkQueueLen, 42)
	if got := testutil.ToFloat64(obs.gauges[GaugeUplinkQueueLen]); got != 42 {
		t.Fatalf("expected queue gauge 42, got %f", got)
	}

	obs.ObserveLatency(HistUplinkWrite, 0.002)
	hCollector := obs.histos[HistUplinkWrite].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected uplink histogram to record 1 sample, got %d", samples)
	}

	obs.IncCounter("not_a_metric", "x", 1)
	obs.SetGauge("not_a_gauge", 1)
}

func TestPromObsLogsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	obs := NewPromObs(slog.New(slog.NewTextHandler(&buf, nil)), prometheus.NewRegistry())

	obs.LogWarn("bus_lagged", ports.Field{Key: "task", Value: "console"}, ports.Field{Key: "skipped", Value: 7})
	obs.LogError("uplink_write_failed", errors.New("EIO"))

	out := buf.String()
	for _, want := range []string{"bus_lagged", "task=console", "skipped=7", "uplink_write_failed", "error=EIO"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output:\n%s", want, out)
		}
	}
}

func TestNewLoggerWithRotatingFile(t *testing.T) {
	cfg := LoggingConfig{Level: "debug", File: filepath.Join(t.TempDir(), "orbisat.log")}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	logger, closer, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closer.Close()
	logger.Debug("hello")

	bad := LoggingConfig{Level: "loud"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected invalid level to fail validation")
	}
}
