package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orbisat/orbisat/internal/adapters/queue"
	"github.com/orbisat/orbisat/internal/bus"
	"github.com/orbisat/orbisat/internal/clock"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
	"github.com/orbisat/orbisat/internal/telemetry"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type stubDriver struct {
	mu    sync.Mutex
	reads int
	data  []byte
	err   error
}

func (d *stubDriver) Name() string { return "stub" }

func (d *stubDriver) Read(context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	return d.data, d.err
}

type mockObs struct {
	mu       sync.Mutex
	warns    []string
	infos    []string
	errors   []error
	counters map[string]float64
	gauges   map[string]float64
}

func newMockObs() *mockObs {
	return &mockObs{counters: map[string]float64{}, gauges: map[string]float64{}}
}

func (m *mockObs) LogInfo(msg string, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockObs) LogWarn(msg string, fields ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range fields {
		if f.Key == "task" {
			msg += " " + f.Value.(string)
		}
	}
	m.warns = append(m.warns, msg)
}

func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}

func (m *mockObs) LogCritical(msg string, err error, fields ...ports.Field) {
	m.LogError(msg, err, fields...)
}

func (m *mockObs) IncCounter(name, label string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name+"{"+label+"}"] += v
}

func (m *mockObs) ObserveLatency(string, float64) {}

func (m *mockObs) SetGauge(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = v
}

func (m *mockObs) counter(key string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

type memLog struct {
	packets []domain.Packet
	flushes int
	err     error
}

func (l *memLog) Append(p domain.Packet) error {
	if l.err != nil {
		return l.err
	}
	l.packets = append(l.packets, p)
	return nil
}

func (l *memLog) Flush() error { l.flushes++; return nil }

func (l *memLog) Stats() ports.PacketLogStats {
	return ports.PacketLogStats{Records: uint64(len(l.packets))}
}

func (l *memLog) Close() error { return nil }

type memTransport struct {
	mu     sync.Mutex
	frames [][]byte
	delay  time.Duration
}

func (m *memTransport) Name() string { return "mem" }

func (m *memTransport) WriteFrame(b []byte) error {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, append([]byte(nil), b...))
	return nil
}

func recv(t *testing.T, sub *bus.Subscription) domain.TmPacket {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	return p.(domain.TmPacket)
}

func start(body func(context.Context) error) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- body(ctx) }()
	return cancel, done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not return")
		return nil
	}
}

func TestSensorPollerSplitsReading(t *testing.T) {
	b := bus.New(16)
	sub := b.Subscribe()
	pub := b.Publisher()
	defer pub.Close()

	fake := clock.Fake(epoch)
	env := domain.Environment{PressureHPa: 1001.5, TemperatureC: -3.25, HumidityPct: 55}
	drv := &stubDriver{data: env.Bytes()}
	obs := newMockObs()
	deps := Deps{Clock: fake, Obs: obs}

	mk := func(d domain.DeviceID) *telemetry.Sender { return telemetry.NewSender(d, pub, telemetry.WithClock(fake)) }
	cancel, done := start(SensorPoller(drv,
		mk(domain.DevicePressure), mk(domain.DeviceTemperature), mk(domain.DeviceHumidity),
		time.Second, deps))

	want := []struct {
		dev domain.DeviceID
		v   float32
	}{
		{domain.DevicePressure, env.PressureHPa},
		{domain.DeviceTemperature, env.TemperatureC},
		{domain.DeviceHumidity, env.HumidityPct},
	}
	for _, w := range want {
		got := recv(t, sub)
		v, _ := domain.F32(got.Payload.Bytes(), 0)
		if got.Device != w.dev || v != w.v || got.Payload.Len() != 4 {
			t.Fatalf("expected %s=%v, got %v", w.dev, w.v, got)
		}
		if got.Timestamp != domain.TimestampFrom(epoch) {
			t.Fatalf("expected publish-time stamp, got %d", got.Timestamp)
		}
	}

	fake.Advance(time.Second)
	if got := recv(t, sub); got.Device != domain.DevicePressure {
		t.Fatalf("expected second reading after one tick, got %v", got)
	}

	cancel()
	if err := waitErr(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := obs.counter("orbisat_packets_published_total{humidity}"); got < 1 {
		t.Fatalf("expected humidity publish counter, got %v", got)
	}
}

func TestPollerDriverErrorIsFatal(t *testing.T) {
	b := bus.New(4)
	pub := b.Publisher()
	defer pub.Close()
	boom := errors.New("i2c nack")
	drv := &stubDriver{err: boom}

	body := DriverPoller(drv, telemetry.NewSender(domain.DeviceAccelerometer, pub), domain.AccelerationSize, time.Millisecond, Deps{})
	if err := body(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestPollerRejectsWrongSize(t *testing.T) {
	b := bus.New(4)
	pub := b.Publisher()
	defer pub.Close()
	drv := &stubDriver{data: []byte{1, 2, 3}}

	body := DriverPoller(drv, telemetry.NewSender(domain.DeviceGPS, pub), domain.PositionSize, time.Millisecond, Deps{})
	if err := body(context.Background()); err == nil {
		t.Fatalf("expected short position reading to fail")
	}
}

func TestHeartbeatSequence(t *testing.T) {
	b := bus.New(8)
	sub := b.Subscribe()
	pub := b.Publisher()
	defer pub.Close()

	fake := clock.Fake(epoch)
	boot := uuid.New()
	cancel, done := start(Heartbeat(telemetry.NewSender(domain.DeviceSystem, pub, telemetry.WithClock(fake)),
		500*time.Millisecond, boot, Deps{Clock: fake}))
	defer func() {
		cancel()
		waitErr(t, done)
	}()

	for i := 0; i < 3; i++ {
		got := recv(t, sub)
		h, err := domain.ParseHeartbeat(got.Payload.Bytes())
		if err != nil {
			t.Fatalf("parse heartbeat: %v", err)
		}
		if h.Seq != uint64(i) || h.UptimeMS != uint64(i*500) || !bytes.Equal(h.BootID, boot[:]) {
			t.Fatalf("heartbeat %d: unexpected %+v", i, h)
		}
		fake.Advance(500 * time.Millisecond)
	}
}

func TestAltitudeMonitorLatch(t *testing.T) {
	if got := PressureAltitude(1013.25); got != 0 {
		t.Fatalf("expected sea level at standard pressure, got %v", got)
	}

	mon := NewAltitudeMonitor(AltitudeConfig{})
	sec := domain.Timestamp(time.Second)

	if est, tripped := mon.Observe(1013.25, 0); tripped || est.SpeedMPS != 0 {
		t.Fatalf("first sample must not trip: %+v", est)
	}
	if est, tripped := mon.Observe(1013.25, sec); tripped || est.SpeedMPS != 0 {
		t.Fatalf("stationary sample must not trip: %+v", est)
	}
	est, tripped := mon.Observe(1000, 2*sec)
	if !tripped || !mon.HasMoved() {
		t.Fatalf("expected climb to trip the latch, got %+v", est)
	}
	if est.AltitudeM < 100 || est.AltitudeM > 120 {
		t.Fatalf("expected roughly 110m at 1000hPa, got %v", est.AltitudeM)
	}
	if est.SpeedMPS <= 0 {
		t.Fatalf("expected positive vertical speed, got %v", est.SpeedMPS)
	}
	if _, tripped := mon.Observe(990, 3*sec); tripped {
		t.Fatalf("latch must only trip once")
	}
}

func TestAltitudeMonitorWindowSlides(t *testing.T) {
	mon := NewAltitudeMonitor(AltitudeConfig{Window: 2, SpeedThreshold: 1e9, AltitudeThreshold: 1e9})
	sec := domain.Timestamp(time.Second)
	mon.Observe(1000, 0)
	mon.Observe(1000, sec)
	// with a two-sample window the early climb has left the window
	mon.Observe(990, 2*sec)
	est, _ := mon.Observe(990, 3*sec)
	if est.SpeedMPS != 0 {
		t.Fatalf("expected zero speed once the window holds equal samples, got %v", est.SpeedMPS)
	}
}

func TestAltitudeTaskPublishesAltimeter(t *testing.T) {
	b := bus.New(16)
	in := b.Subscribe()
	check := b.Subscribe()
	pub := b.Publisher()
	monPub := b.Publisher()
	defer monPub.Close()

	obs := newMockObs()
	cancel, done := start(AltitudeTask(in, NewAltitudeMonitor(AltitudeConfig{}),
		telemetry.NewSender(domain.DeviceAltimeter, monPub), Deps{Obs: obs}))

	pressure := telemetry.NewSender(domain.DevicePressure, pub)
	if err := pressure.SendBytes(context.Background(), domain.Environment{PressureHPa: 1013.25}.Bytes()[:4]); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := recv(t, check); got.Device != domain.DevicePressure {
		t.Fatalf("expected pressure first, got %v", got)
	}
	got := recv(t, check)
	if got.Device != domain.DeviceAltimeter {
		t.Fatalf("expected altimeter packet, got %v", got)
	}
	alt, err := domain.ParseAltitude(got.Payload.Bytes())
	if err != nil || alt.AltitudeM != 0 {
		t.Fatalf("unexpected altitude %+v err %v", alt, err)
	}

	pub.Close()
	cancel()
	waitErr(t, done)
}

func TestLogWriterReportsLagAndExitsOnClose(t *testing.T) {
	b := bus.New(2)
	sub := b.Subscribe()
	pub := b.Publisher()
	for i := 0; i < 5; i++ {
		pub.Publish(context.Background(), domain.TmPacket{Device: domain.DeviceGPS, Timestamp: domain.Timestamp(i)})
	}
	pub.Close()

	log := &memLog{}
	obs := newMockObs()
	if err := LogWriter(sub, log, Deps{Obs: obs})(context.Background()); err != nil {
		t.Fatalf("expected clean exit on closed bus, got %v", err)
	}
	if len(log.packets) != 2 {
		t.Fatalf("expected the 2 retained packets, got %d", len(log.packets))
	}
	if first := log.packets[0].(domain.TmPacket).Timestamp; first != 3 {
		t.Fatalf("expected oldest retained packet 3, got %d", first)
	}
	if len(obs.warns) != 1 || obs.warns[0] != "bus_lagged log-writer" {
		t.Fatalf("expected one lag warning, got %v", obs.warns)
	}
	if got := obs.counter("orbisat_bus_lagged_packets_total{log-writer}"); got != 3 {
		t.Fatalf("expected 3 lagged packets counted, got %v", got)
	}
	if log.flushes == 0 {
		t.Fatalf("expected the log to be flushed")
	}
}

func TestLogWriterAppendFailureIsFatal(t *testing.T) {
	b := bus.New(2)
	sub := b.Subscribe()
	pub := b.Publisher()
	pub.Publish(context.Background(), domain.TmPacket{Device: domain.DeviceGPS})
	pub.Close()

	disk := errors.New("no space left on device")
	if err := LogWriter(sub, &memLog{err: disk}, Deps{})(context.Background()); !errors.Is(err, disk) {
		t.Fatalf("expected disk error, got %v", err)
	}
}

func TestUplinkPathIsLosslessAndOrdered(t *testing.T) {
	const n = 20
	b := bus.New(64)
	sub := b.Subscribe()
	pub := b.Publisher()
	tx, rx := queue.NewP2P(1)
	tr := &memTransport{delay: time.Millisecond}

	fwdCancel, fwdDone := start(UplinkForwarder(sub, tx, Deps{}))
	defer fwdCancel()
	txCancel, txDone := start(UplinkTransmitter(rx, tr, Deps{}))
	defer txCancel()

	for i := 0; i < n; i++ {
		pub.Publish(context.Background(), domain.TmPacket{Device: domain.DevicePressure, Timestamp: domain.Timestamp(i)})
	}
	pub.Close()

	if err := waitErr(t, fwdDone); err != nil {
		t.Fatalf("forwarder: %v", err)
	}
	tx.Close()
	if err := waitErr(t, txDone); err != nil {
		t.Fatalf("transmitter: %v", err)
	}

	if len(tr.frames) != n {
		t.Fatalf("expected %d frames, got %d", n, len(tr.frames))
	}
	for i, f := range tr.frames {
		p, err := domain.Decode(f)
		if err != nil {
			t.Fatalf("decode frame %d: %v", i, err)
		}
		if p.(domain.TmPacket).Timestamp != domain.Timestamp(i) {
			t.Fatalf("frame %d out of order: %v", i, p)
		}
	}
}

func TestUplinkForwarderFailsWhenReceiverGone(t *testing.T) {
	b := bus.New(4)
	sub := b.Subscribe()
	pub := b.Publisher()
	defer pub.Close()
	tx, rx := queue.NewP2P(1)
	rx.Close()

	pub.Publish(context.Background(), domain.TmPacket{Device: domain.DeviceGPS})
	err := UplinkForwarder(sub, tx, Deps{})(context.Background())
	if !errors.Is(err, queue.ErrClosed) {
		t.Fatalf("expected queue.ErrClosed, got %v", err)
	}
}

func TestConsolePrintsReadableLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, ColorNever)
	p := domain.TmPacket{Device: domain.DevicePressure, Timestamp: domain.TimestampFrom(epoch),
		Payload: domain.MustPayload(domain.Environment{PressureHPa: 1013.25}.Bytes()[:4])}
	if err := c.Print(p); err != nil {
		t.Fatalf("print: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"12:00:00.000", "pressure", "1013.25 hPa"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("expected no escape codes with color disabled: %q", line)
	}
}

func TestDescribeFallsBackToHex(t *testing.T) {
	got := Describe(domain.TmPacket{Device: domain.DeviceUnknown, Payload: domain.MustPayload([]byte{0xAB, 0x01})})
	if got != "ab01" {
		t.Fatalf("expected hex fallback, got %q", got)
	}
	if got := Describe(domain.TmPacket{Device: domain.DeviceGPS, Payload: domain.MustPayload(domain.NoFix().Bytes())}); got != "no fix" {
		t.Fatalf("expected no fix, got %q", got)
	}
}

type sliceSource struct {
	packets []domain.Packet
}

func (s *sliceSource) Recv(context.Context) (domain.Packet, error) {
	if len(s.packets) == 0 {
		return nil, io.EOF
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, nil
}

type mockSink struct {
	batches [][]domain.TmPacket
	err     error
}

func (m *mockSink) Name() string { return "mock" }

func (m *mockSink) WriteBatch(b []domain.TmPacket) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, append([]domain.TmPacket(nil), b...))
	return nil
}

func TestRunIngestBatches(t *testing.T) {
	src := &sliceSource{}
	for i := 0; i < 5; i++ {
		src.packets = append(src.packets, domain.TmPacket{Device: domain.DeviceHumidity, Timestamp: domain.Timestamp(i)})
	}
	sink := &mockSink{}
	obs := newMockObs()
	stats, err := RunIngest(context.Background(), src, []ports.Sink{sink}, 2, obs)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.Packets != 5 || stats.Batches != 3 || len(sink.batches) != 3 {
		t.Fatalf("unexpected stats %+v batches=%d", stats, len(sink.batches))
	}
	if got := obs.counter("orbisat_ground_ingested_total{mock}"); got != 5 {
		t.Fatalf("expected 5 ingested, got %v", got)
	}
}

func TestRunIngestSinkFailure(t *testing.T) {
	src := &sliceSource{packets: []domain.Packet{domain.TmPacket{Device: domain.DeviceGPS}}}
	boom := errors.New("connection refused")
	obs := newMockObs()
	if _, err := RunIngest(context.Background(), src, []ports.Sink{&mockSink{err: boom}}, 10, obs); !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if len(obs.errors) != 1 {
		t.Fatalf("expected sink failure to be logged")
	}
}
