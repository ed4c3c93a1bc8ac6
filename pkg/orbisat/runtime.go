package orbisat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orbisat/orbisat/internal/adapters/instrument"
	"github.com/orbisat/orbisat/internal/adapters/logstore"
	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/adapters/queue"
	"github.com/orbisat/orbisat/internal/adapters/serial"
	"github.com/orbisat/orbisat/internal/app/pipeline"
	"github.com/orbisat/orbisat/internal/bus"
	"github.com/orbisat/orbisat/internal/clock"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
	"github.com/orbisat/orbisat/internal/shutdown"
	"github.com/orbisat/orbisat/internal/supervise"
	"github.com/orbisat/orbisat/internal/telemetry"
)

// ErrAlreadyStarted is returned by Run on a runtime that has already run.
var ErrAlreadyStarted = errors.New("orbisat: runtime already started")

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	drivers   map[Role]Driver
	consumers []Consumer
	obs       Observability
	clock     Clock
	transport Transport
	packetLog PacketLog
	console   io.Writer
	logger    *slog.Logger
	bootID    uuid.UUID
}

// WithDriver replaces the configured driver for one instrument role.
func WithDriver(role Role, drv Driver) RuntimeOption {
	return func(o *runtimeOverrides) {
		if drv == nil {
			return
		}
		if o.drivers == nil {
			o.drivers = make(map[Role]Driver)
		}
		o.drivers[role] = drv
	}
}

// WithConsumer attaches a host consumer to the bus. It sees every packet
// published after the runtime is built, subject to bus lag.
func WithConsumer(c Consumer) RuntimeOption {
	return func(o *runtimeOverrides) {
		if c != nil {
			o.consumers = append(o.consumers, c)
		}
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.obs = obs
	}
}

// WithClock drives every ticker and timestamp from c.
func WithClock(c Clock) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = c
	}
}

// WithTransport enables the uplink over tr instead of the configured
// serial device.
func WithTransport(tr Transport) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.transport = tr
	}
}

// WithPacketLog replaces the file-backed durable log.
func WithPacketLog(l PacketLog) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.packetLog = l
	}
}

// WithConsoleOutput redirects the console reporter, which writes to stdout
// by default.
func WithConsoleOutput(w io.Writer) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.console = w
	}
}

// WithLogger sets the slog logger behind the default observability backend.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithBootID fixes the boot id carried by heartbeats.
func WithBootID(id uuid.UUID) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.bootID = id
	}
}

type task struct {
	name string
	body supervise.Body
}

// RuntimeStats is a point-in-time view of the runtime resources.
type RuntimeStats struct {
	BootID       string
	Bus          BusStats
	UplinkQueued int
	Log          PacketLogStats
}

// Runtime wires instruments, the bus, the uplink queue and every consumer
// into one set of supervised tasks sharing a shutdown gate.
type Runtime struct {
	cfg      *Config
	obs      ports.Observability
	clock    clock.Clock
	registry *prometheus.Registry
	gate     *shutdown.Gate
	bus      *bus.Bus
	uplinkTx *queue.P2PSender
	log      ports.PacketLog
	bootID   uuid.UUID
	tasks    []task
	closers  []io.Closer

	started   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	metricsMu   sync.Mutex
	metricsAddr string
}

// NewRuntime validates cfg, opens every configured resource and prepares the
// supervised tasks. Consumers subscribe here, so nothing published once Run
// starts is missed.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	r := &Runtime{
		cfg:      cfg,
		clock:    overrides.clock,
		registry: prometheus.NewRegistry(),
		gate:     shutdown.NewGate(),
		bus:      bus.New(cfg.Policy.BusCapacity),
		bootID:   overrides.bootID,
		done:     make(chan struct{}),
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.bootID == uuid.Nil {
		r.bootID = uuid.New()
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r.obs = overrides.obs
	if r.obs == nil {
		logger := overrides.logger
		if logger == nil {
			logger = slog.Default()
		}
		r.obs = observability.NewPromObs(logger, r.registry)
	}

	if err := r.build(&overrides); err != nil {
		return nil, errors.Join(err, r.closeAll())
	}
	return r, nil
}

func (r *Runtime) build(o *runtimeOverrides) error {
	cfg := r.cfg
	deps := pipeline.Deps{Clock: r.clock, Obs: r.obs}
	stamp := telemetry.WithClock(r.clock)

	// Consumers first: every subscription must exist before a producer runs.
	log := o.packetLog
	if log == nil {
		w, err := logstore.Create(cfg.Log, r.clock.Now())
		if err != nil {
			return fmt.Errorf("packet log: %w", err)
		}
		log = w
	}
	r.log = log
	r.closers = append(r.closers, log)
	r.consumer("log-writer", func(src ports.Source) supervise.Body {
		return pipeline.LogWriter(src, log, deps)
	})

	if cfg.Console.On() {
		w := o.console
		if w == nil {
			w = os.Stdout
		}
		console := pipeline.NewConsole(w, cfg.Console.Color)
		r.consumer("console", func(src ports.Source) supervise.Body {
			return pipeline.ConsoleReporter(src, console, deps)
		})
	}

	for _, c := range o.consumers {
		r.hostConsumer(c, deps)
	}

	{
		sub := r.bus.Subscribe()
		pub := r.bus.Publisher()
		mon := pipeline.NewAltitudeMonitor(cfg.Altitude)
		body := pipeline.AltitudeTask(sub, mon, telemetry.NewSender(domain.DeviceAltimeter, pub, stamp), deps)
		r.addTask("altitude-monitor", func(ctx context.Context) error {
			defer pub.Close()
			defer sub.Close()
			return body(ctx)
		})
	}

	tr := o.transport
	if tr == nil && cfg.Uplink.Enabled {
		port, err := serial.Open(cfg.Uplink.Serial)
		if err != nil {
			return fmt.Errorf("uplink: %w", err)
		}
		r.closers = append(r.closers, port)
		tr = port
	}
	if tr != nil {
		tx, rx := queue.NewP2P(cfg.Policy.UplinkQueueLen)
		r.uplinkTx = tx
		if !cfg.Uplink.DirectHeartbeat {
			r.consumer("uplink-forwarder", func(src ports.Source) supervise.Body {
				body := pipeline.UplinkForwarder(src, tx, deps)
				return func(ctx context.Context) error {
					defer tx.Close()
					return body(ctx)
				}
			})
		}
		transmit := pipeline.UplinkTransmitter(rx, tr, deps)
		r.addTask("uplink-transmitter", func(ctx context.Context) error {
			defer rx.Close()
			return transmit(ctx)
		})
	}

	drivers := make(map[Role]Driver, 3)
	for role, ic := range map[Role]instrument.Config{
		RoleEnvironment:   cfg.Instruments.Environment,
		RoleAccelerometer: cfg.Instruments.Accelerometer,
		RolePosition:      cfg.Instruments.Position,
	} {
		if drv, ok := o.drivers[role]; ok {
			drivers[role] = drv
			continue
		}
		drv, closer, err := instrument.Open(role, ic)
		if err != nil {
			return fmt.Errorf("instrument %s: %w", role, err)
		}
		r.closers = append(r.closers, closer)
		drivers[role] = drv
	}

	pol := cfg.Policy
	r.producer("sensor-poller", func(pub ports.Endpoint) supervise.Body {
		return pipeline.SensorPoller(drivers[RoleEnvironment],
			telemetry.NewSender(domain.DevicePressure, pub, stamp),
			telemetry.NewSender(domain.DeviceTemperature, pub, stamp),
			telemetry.NewSender(domain.DeviceHumidity, pub, stamp),
			pol.SensorInterval, deps)
	})
	r.producer("accel-poller", func(pub ports.Endpoint) supervise.Body {
		return pipeline.DriverPoller(drivers[RoleAccelerometer],
			telemetry.NewSender(domain.DeviceAccelerometer, pub, stamp),
			domain.AccelerationSize, pol.AccelInterval, deps)
	})
	r.producer("gps-poller", func(pub ports.Endpoint) supervise.Body {
		return pipeline.DriverPoller(drivers[RolePosition],
			telemetry.NewSender(domain.DeviceGPS, pub, stamp),
			domain.PositionSize, pol.GPSInterval, deps)
	})

	if cfg.Uplink.DirectHeartbeat && r.uplinkTx != nil {
		tx := r.uplinkTx
		body := pipeline.Heartbeat(telemetry.NewSender(domain.DeviceSystem, tx, stamp), pol.HeartbeatInterval, r.bootID, deps)
		r.addTask("heartbeat", func(ctx context.Context) error {
			defer tx.Close()
			return body(ctx)
		})
	} else {
		r.producer("heartbeat", func(pub ports.Endpoint) supervise.Body {
			return pipeline.Heartbeat(telemetry.NewSender(domain.DeviceSystem, pub, stamp), pol.HeartbeatInterval, r.bootID, deps)
		})
	}

	if cfg.Metrics.Addr != "" {
		r.addTask("metrics-server", r.serveMetrics)
	}
	r.addTask("resource-gauges", r.recordResourceGauges)
	return nil
}

func (r *Runtime) addTask(name string, body supervise.Body) {
	r.tasks = append(r.tasks, task{name: name, body: body})
}

// consumer subscribes now and releases the subscription when the task ends.
func (r *Runtime) consumer(name string, build func(ports.Source) supervise.Body) {
	sub := r.bus.Subscribe()
	body := build(sub)
	r.addTask(name, func(ctx context.Context) error {
		defer sub.Close()
		return body(ctx)
	})
}

// producer holds one bus publisher for the lifetime of its task. The bus
// closes once every producer has returned.
func (r *Runtime) producer(name string, build func(ports.Endpoint) supervise.Body) {
	pub := r.bus.Publisher()
	body := build(pub)
	r.addTask(name, func(ctx context.Context) error {
		defer pub.Close()
		return body(ctx)
	})
}

func (r *Runtime) hostConsumer(c Consumer, deps pipeline.Deps) {
	name := "consumer-" + c.Name()
	r.consumer(name, func(src ports.Source) supervise.Body {
		body := pipeline.Forward(name, src, func(ctx context.Context, p domain.Packet) error {
			tm, ok := p.(domain.TmPacket)
			if !ok {
				return nil
			}
			return c.Consume(ctx, tm)
		}, deps)
		return func(ctx context.Context) error {
			if f, ok := c.(finisher); ok {
				defer f.finish()
			}
			err := body(ctx)
			if errors.Is(err, ErrChannelConsumerClosed) {
				r.obs.LogInfo("consumer_detached", ports.Field{Key: "consumer", Value: c.Name()})
				return nil
			}
			return err
		}
	})
}

// Run starts every task and blocks until all of them have returned. It
// returns the first task failure; cancelling ctx or calling Shutdown is a
// graceful stop and yields nil unless releasing resources fails.
func (r *Runtime) Run(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(r.done)

	stop := context.AfterFunc(ctx, r.gate.Fire)
	defer stop()

	r.obs.LogInfo("runtime_starting",
		ports.Field{Key: "boot_id", Value: r.bootID.String()},
		ports.Field{Key: "tasks", Value: len(r.tasks)},
		ports.Field{Key: "log", Value: r.log.Stats().Path})

	group := supervise.NewGroup(r.gate)
	group.OnExit = r.taskExited
	for _, t := range r.tasks {
		group.Go(t.name, t.body)
	}
	runErr := group.Wait()

	closeErr := r.closeAll()
	if runErr != nil {
		if closeErr != nil {
			r.obs.LogError("teardown_failed", closeErr)
		}
		return runErr
	}
	r.obs.LogInfo("runtime_stopped", ports.Field{Key: "boot_id", Value: r.bootID.String()})
	return closeErr
}

func (r *Runtime) taskExited(name string, err error) {
	if err != nil {
		r.obs.IncCounter(observability.MetricTaskFailures, name, 1)
		r.obs.LogCritical("task_failed", err, ports.Field{Key: "task", Value: name})
		return
	}
	r.obs.LogInfo("task_stopped", ports.Field{Key: "task", Value: name})
}

// Shutdown fires the gate and waits for Run to return. A runtime that never
// ran just releases its resources.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.gate.Fire()
	if !r.started.Load() {
		return r.closeAll()
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Gate exposes the shared shutdown gate so callers can attach signal
// handling.
func (r *Runtime) Gate() *shutdown.Gate { return r.gate }

// Registry is the Prometheus registry served on /metrics.
func (r *Runtime) Registry() *prometheus.Registry { return r.registry }

// MetricsAddr reports the bound metrics listener address, or "" while the
// server is not listening.
func (r *Runtime) MetricsAddr() string {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	return r.metricsAddr
}

func (r *Runtime) Stats() RuntimeStats {
	st := RuntimeStats{
		BootID: r.bootID.String(),
		Bus:    r.bus.Stats(),
		Log:    r.log.Stats(),
	}
	if r.uplinkTx != nil {
		st.UplinkQueued = r.uplinkTx.Len()
	}
	return st
}

// closeAll releases resources in reverse order of acquisition.
func (r *Runtime) closeAll() error {
	r.closeOnce.Do(func() {
		var errs []error
		r.bus.Close()
		for i := len(r.closers) - 1; i >= 0; i-- {
			if err := r.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}

func (r *Runtime) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if r.gate.HasFired() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("shutting down"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ln, err := net.Listen("tcp", r.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	r.metricsMu.Lock()
	r.metricsAddr = ln.Addr().String()
	r.metricsMu.Unlock()

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-served
		if err != nil {
			return err
		}
		return ctx.Err()
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

func (r *Runtime) recordResourceGauges(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.cfg.Policy.GaugeInterval)
	defer ticker.Stop()

	for {
		r.recordGauges()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runtime) recordGauges() {
	st := r.bus.Stats()
	r.obs.SetGauge(observability.GaugeBusSubscribers, float64(st.Subscribers))
	r.obs.SetGauge(observability.GaugeBusDropped, float64(st.Dropped))
	if r.uplinkTx != nil {
		r.obs.SetGauge(observability.GaugeUplinkQueueLen, float64(r.uplinkTx.Len()))
	}
	r.obs.SetGauge(observability.GaugeLogSizeBytes, float64(r.log.Stats().SizeBytes))
}
