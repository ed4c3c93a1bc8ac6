package pipeline

import (
	"context"
	"math"

	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
	"github.com/orbisat/orbisat/internal/supervise"
	"github.com/orbisat/orbisat/internal/telemetry"
)

const feetToMeters = 0.3048

// PressureAltitude converts static pressure in hPa to altitude in meters
// using the standard-atmosphere barometric formula.
func PressureAltitude(hpa float64) float64 {
	return 145366.45 * (1 - math.Pow(hpa/1013.25, 0.190284)) * feetToMeters
}

type AltitudeConfig struct {
	Window            int     `yaml:"window"`
	SpeedThreshold    float64 `yaml:"speed_threshold"`    // m/s, absolute
	AltitudeThreshold float64 `yaml:"altitude_threshold"` // m above the first reading
}

func (c *AltitudeConfig) ApplyDefaults() {
	if c.Window <= 1 {
		c.Window = 8
	}
	if c.SpeedThreshold <= 0 {
		c.SpeedThreshold = 0.5
	}
	if c.AltitudeThreshold <= 0 {
		c.AltitudeThreshold = 300
	}
}

// AltitudeMonitor keeps a sliding window of altitude estimates and latches
// once the vehicle has clearly left the ground.
type AltitudeMonitor struct {
	cfg   AltitudeConfig
	alt   []float64
	ts    []domain.Timestamp
	base  float64
	seen  bool
	moved bool
}

func NewAltitudeMonitor(cfg AltitudeConfig) *AltitudeMonitor {
	cfg.ApplyDefaults()
	return &AltitudeMonitor{
		cfg: cfg,
		alt: make([]float64, 0, cfg.Window),
		ts:  make([]domain.Timestamp, 0, cfg.Window),
	}
}

// Observe folds in one pressure sample and returns the current estimate.
// The second result is true only on the sample that trips the latch.
func (m *AltitudeMonitor) Observe(hpa float32, at domain.Timestamp) (domain.Altitude, bool) {
	alt := PressureAltitude(float64(hpa))
	if !m.seen {
		m.base, m.seen = alt, true
	}
	if len(m.alt) == m.cfg.Window {
		copy(m.alt, m.alt[1:])
		copy(m.ts, m.ts[1:])
		m.alt, m.ts = m.alt[:len(m.alt)-1], m.ts[:len(m.ts)-1]
	}
	m.alt = append(m.alt, alt)
	m.ts = append(m.ts, at)

	speed := m.averageSpeed()
	tripped := false
	if !m.moved && (math.Abs(speed) > m.cfg.SpeedThreshold || alt-m.base > m.cfg.AltitudeThreshold) {
		m.moved, tripped = true, true
	}
	return domain.Altitude{AltitudeM: float32(alt), SpeedMPS: float32(speed)}, tripped
}

func (m *AltitudeMonitor) HasMoved() bool { return m.moved }

// averageSpeed is the mean of the per-step rates across the window.
// Steps without elapsed time are ignored.
func (m *AltitudeMonitor) averageSpeed() float64 {
	var (
		sum   float64
		steps int
	)
	for i := 1; i < len(m.alt); i++ {
		if m.ts[i] <= m.ts[i-1] {
			continue
		}
		dt := float64(m.ts[i]-m.ts[i-1]) / 1e9
		sum += (m.alt[i] - m.alt[i-1]) / dt
		steps++
	}
	if steps == 0 {
		return 0
	}
	return sum / float64(steps)
}

// AltitudeTask feeds pressure packets from src into mon and publishes a
// derived altimeter packet for each one.
func AltitudeTask(src ports.Source, mon *AltitudeMonitor, out *telemetry.Sender, deps Deps) supervise.Body {
	deps = deps.withDefaults()
	return func(ctx context.Context) error {
		return consume(ctx, "altitude-monitor", src, deps.Obs, func(ctx context.Context, p domain.Packet) error {
			tm, ok := p.(domain.TmPacket)
			if !ok || tm.Device != domain.DevicePressure {
				return nil
			}
			hpa, err := domain.F32(tm.Payload.Bytes(), 0)
			if err != nil {
				deps.Obs.LogWarn("altitude_bad_pressure", ports.Field{Key: "error", Value: err.Error()})
				return nil
			}
			est, tripped := mon.Observe(hpa, tm.Timestamp)
			deps.Obs.SetGauge(observability.GaugeAltitudeMeters, float64(est.AltitudeM))
			deps.Obs.SetGauge(observability.GaugeVerticalSpeedMPS, float64(est.SpeedMPS))
			if tripped {
				deps.Obs.SetGauge(observability.GaugeHasMoved, 1)
				deps.Obs.LogInfo("movement_detected",
					ports.Field{Key: "altitude_m", Value: est.AltitudeM},
					ports.Field{Key: "speed_mps", Value: est.SpeedMPS})
			}
			return send(ctx, out, est.Bytes(), deps.Obs)
		})
	}
}
