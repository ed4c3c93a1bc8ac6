package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/orbisat/orbisat/internal/adapters/logstore"
	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/domain"
)

func TestScrapeMetricsSumsLabelSets(t *testing.T) {
	exposition := `# HELP orbisat_packets_published_total Packets published.
# TYPE orbisat_packets_published_total counter
orbisat_packets_published_total{device="pressure"} 12
orbisat_packets_published_total{device="gps"} 3
orbisat_uplink_queue_length 7
orbisat_uplink_queue_length_other 99
orbisat_altitude_meters 1.5e+02
`
	got, err := scrapeMetrics(strings.NewReader(exposition), statsMetrics)
	if err != nil {
		t.Fatalf("scrapeMetrics: %v", err)
	}
	if got[observability.MetricPacketsPublished] != 15 {
		t.Fatalf("expected summed counter 15, got %v", got[observability.MetricPacketsPublished])
	}
	if got[observability.GaugeUplinkQueueLen] != 7 {
		t.Fatalf("expected queue length 7, got %v", got[observability.GaugeUplinkQueueLen])
	}
	if got[observability.GaugeAltitudeMeters] != 150 {
		t.Fatalf("expected altitude 150, got %v", got[observability.GaugeAltitudeMeters])
	}
	if _, ok := got[observability.GaugeHasMoved]; ok {
		t.Fatalf("expected absent family to stay unset")
	}
}

func TestPrintLogStats(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w, err := logstore.Create(logstore.Config{Dir: t.TempDir(), Compression: logstore.CompressionZstd, Digest: true}, start)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i, dev := range []domain.DeviceID{domain.DevicePressure, domain.DevicePressure, domain.DeviceGPS} {
		p := domain.TmPacket{
			Device:    dev,
			Timestamp: domain.TimestampFrom(start.Add(time.Duration(i) * time.Second)),
			Payload:   domain.MustPayload([]byte{byte(i)}),
		}
		if err := w.Append(p); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var out bytes.Buffer
	if err := printLogStats(&out, w.Path()); err != nil {
		t.Fatalf("printLogStats: %v", err)
	}
	text := out.String()
	for _, want := range []string{"records  3", "pressure", "gps", "digest   ok", "(2s)"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
}
