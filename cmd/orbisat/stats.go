package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/orbisat/orbisat/internal/adapters/logstore"
	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/domain"
)

var statsMetrics = []string{
	observability.MetricPacketsPublished,
	observability.MetricLogRecords,
	observability.MetricUplinkFrames,
	observability.MetricBusLagged,
	observability.GaugeUplinkQueueLen,
	observability.GaugeLogSizeBytes,
	observability.GaugeAltitudeMeters,
	observability.GaugeHasMoved,
}

func statsCommand(args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ContinueOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "refresh interval")
	once := fs.Bool("once", false, "print a single snapshot and exit")
	logPath := fs.String("log", "", "summarise this packet log file instead of polling metrics")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *logPath != "" {
		return printLogStats(os.Stdout, *logPath)
	}
	if *once {
		return printMetricsSnapshot(os.Stdout, *url)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(os.Stdout, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(w io.Writer, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scrapeMetrics(resp.Body, statsMetrics)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "[%s] packets=%g logged=%g uplinked=%g lagged=%g queue=%g log_bytes=%g alt_m=%.1f moved=%g\n",
		time.Now().Format(time.RFC3339),
		values[observability.MetricPacketsPublished],
		values[observability.MetricLogRecords],
		values[observability.MetricUplinkFrames],
		values[observability.MetricBusLagged],
		values[observability.GaugeUplinkQueueLen],
		values[observability.GaugeLogSizeBytes],
		values[observability.GaugeAltitudeMeters],
		values[observability.GaugeHasMoved],
	)
	return nil
}

// scrapeMetrics reads the Prometheus text format and returns the value of
// every requested family, summed over its label sets.
func scrapeMetrics(r io.Reader, names []string) (map[string]float64, error) {
	out := make(map[string]float64, len(names))
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, name := range names {
			rest, ok := strings.CutPrefix(line, name)
			if !ok || rest == "" {
				continue
			}
			switch rest[0] {
			case ' ':
			case '{':
				end := strings.IndexByte(rest, '}')
				if end < 0 {
					continue
				}
				rest = rest[end+1:]
			default:
				continue
			}
			var v float64
			if _, err := fmt.Sscanf(strings.TrimSpace(rest), "%g", &v); err == nil {
				out[name] += v
			}
		}
	}
	return out, scanner.Err()
}

func printLogStats(w io.Writer, path string) error {
	perDevice := make(map[domain.DeviceID]uint64)
	var first, last domain.Timestamp
	res, err := logstore.Iterate(path, func(p domain.Packet) error {
		tm, ok := p.(domain.TmPacket)
		if !ok {
			return nil
		}
		if first == 0 {
			first = tm.Timestamp
		}
		last = tm.Timestamp
		perDevice[tm.Device]++
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "log      %s\n", path)
	fmt.Fprintf(w, "records  %d\n", res.Records)
	fmt.Fprintf(w, "bytes    %d\n", res.Bytes)
	if res.Records > 0 {
		fmt.Fprintf(w, "span     %s .. %s (%s)\n",
			first.Time().Format(time.RFC3339Nano),
			last.Time().Format(time.RFC3339Nano),
			last.Time().Sub(first.Time()))
	}
	if res.Torn {
		fmt.Fprintln(w, "tail     torn (final frame incomplete)")
	}

	devices := make([]domain.DeviceID, 0, len(perDevice))
	for d := range perDevice {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i] < devices[j] })
	for _, d := range devices {
		fmt.Fprintf(w, "  %-14s %d\n", d, perDevice[d])
	}

	switch err := logstore.Verify(path); {
	case err == nil:
		fmt.Fprintln(w, "digest   ok")
	case errors.Is(err, logstore.ErrNoDigest):
		fmt.Fprintln(w, "digest   none")
	default:
		fmt.Fprintf(w, "digest   FAILED: %v\n", err)
	}
	return nil
}
