package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/orbisat/orbisat/internal/ports"
)

// Metric names shared by the runtime, the pipeline tasks and the stats CLI.
const (
	MetricPacketsPublished = "orbisat_packets_published_total"
	MetricBusLagged        = "orbisat_bus_lagged_packets_total"
	MetricTaskFailures     = "orbisat_task_failures_total"
	MetricLogRecords       = "orbisat_log_records_total"
	MetricLogBytes         = "orbisat_log_bytes_total"
	MetricUplinkFrames     = "orbisat_uplink_frames_total"
	MetricUplinkBytes      = "orbisat_uplink_bytes_total"

	GaugeBusSubscribers   = "orbisat_bus_subscribers"
	GaugeBusDropped       = "orbisat_bus_dropped_packets"
	GaugeUplinkQueueLen   = "orbisat_uplink_queue_length"
	GaugeLogSizeBytes     = "orbisat_log_size_bytes"
	GaugeAltitudeMeters   = "orbisat_altitude_meters"
	GaugeVerticalSpeedMPS = "orbisat_vertical_speed_mps"
	GaugeHasMoved         = "orbisat_has_moved"

	HistUplinkWrite    = "orbisat_uplink_write_seconds"
	HistInstrumentRead = "orbisat_instrument_read_seconds"

	MetricGroundIngested = "orbisat_ground_ingested_total"
	HistGroundSink       = "orbisat_ground_sink_seconds"
)

// PromObs implements ports.Observability with Prometheus collectors and a
// structured slog logger.
type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	labelled map[string]*prometheus.CounterVec
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the collectors on reg, or on the default registerer
// when reg is nil.
func NewPromObs(logger *slog.Logger, reg prometheus.Registerer) *PromObs {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricPacketsPublished,
		Help: "Packets published onto the telemetry bus, by device.",
	}, []string{"device"})
	lagged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricBusLagged,
		Help: "Packets a consumer skipped because it fell behind the bus ring.",
	}, []string{"task"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricTaskFailures,
		Help: "Supervised tasks that ended with an error.",
	}, []string{"task"})
	ingested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricGroundIngested,
		Help: "Packets written to a ground sink, by sink.",
	}, []string{"sink"})

	logRecords := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricLogRecords,
		Help: "Packets appended to the durable log.",
	})
	logBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricLogBytes,
		Help: "Encoded bytes appended to the durable log.",
	})
	uplinkFrames := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricUplinkFrames,
		Help: "Frames written to the outbound transport.",
	})
	uplinkBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricUplinkBytes,
		Help: "Bytes written to the outbound transport.",
	})

	gauges := map[string]prometheus.Gauge{}
	for name, help := range map[string]string{
		GaugeBusSubscribers:   "Live bus subscriptions.",
		GaugeBusDropped:       "Packets published while nobody was subscribed.",
		GaugeUplinkQueueLen:   "Packets waiting in the uplink queue.",
		GaugeLogSizeBytes:     "Size of the current durable log file.",
		GaugeAltitudeMeters:   "Barometric altitude estimate.",
		GaugeVerticalSpeedMPS: "Average vertical speed over the altitude window.",
		GaugeHasMoved:         "1 once the altitude monitor detected movement.",
	} {
		gauges[name] = prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	uplinkWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    HistUplinkWrite,
		Help:    "Time to write one frame to the outbound transport.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	instrumentRead := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    HistInstrumentRead,
		Help:    "Time spent in one instrument driver read.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	groundSink := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    HistGroundSink,
		Help:    "Time to write one batch to a ground sink.",
		Buckets: prometheus.DefBuckets,
	})

	collectors := []prometheus.Collector{
		published, lagged, failures, ingested, logRecords, logBytes, uplinkFrames, uplinkBytes,
		uplinkWrite, instrumentRead, groundSink,
	}
	for _, g := range gauges {
		collectors = append(collectors, g)
	}
	reg.MustRegister(collectors...)

	return &PromObs{
		logger: logger,
		counters: map[string]prometheus.Counter{
			MetricLogRecords:   logRecords,
			MetricLogBytes:     logBytes,
			MetricUplinkFrames: uplinkFrames,
			MetricUplinkBytes:  uplinkBytes,
		},
		labelled: map[string]*prometheus.CounterVec{
			MetricPacketsPublished: published,
			MetricBusLagged:        lagged,
			MetricTaskFailures:     failures,
			MetricGroundIngested:   ingested,
		},
		gauges: gauges,
		histos: map[string]prometheus.Observer{
			HistUplinkWrite:    uplinkWrite,
			HistInstrumentRead: instrumentRead,
			HistGroundSink:     groundSink,
		},
	}
}

func (p *PromObs) Logger() *slog.Logger { return p.logger }

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.logger.Warn(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), "error", err)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), "error", err, "critical", true)...)
}

func (p *PromObs) IncCounter(name, label string, v float64) {
	if c, ok := p.labelled[name]; ok {
		c.WithLabelValues(label).Add(v)
		return
	}
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
