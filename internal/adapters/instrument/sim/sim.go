// Package sim provides deterministic instrument drivers for bench runs and
// tests. Every Read advances a step counter; values follow slow sine
// curves plus a steady climb so the altitude monitor has something to see.
package sim

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

// ErrInjected is returned once a driver built with FailAfter runs out of
// healthy reads.
var ErrInjected = errors.New("sim: injected instrument fault")

type Option func(*base)

// FailAfter makes the driver fail every Read after n successful ones.
func FailAfter(n int) Option {
	return func(b *base) { b.failAfter = n }
}

// ClimbRate sets the simulated ascent in hPa lost per Read.
func ClimbRate(hpaPerRead float64) Option {
	return func(b *base) { b.climb = hpaPerRead }
}

type base struct {
	mu        sync.Mutex
	name      string
	step      int
	failAfter int
	climb     float64
}

func (b *base) init(name string, opts []Option) {
	b.name, b.failAfter, b.climb = name, -1, 0.05
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
}

func (b *base) next(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAfter >= 0 && b.step >= b.failAfter {
		return 0, ErrInjected
	}
	b.step++
	return b.step, nil
}

func (b *base) Name() string { return b.name }

// Environment simulates a combined pressure, temperature and humidity
// sensor.
type Environment struct{ base }

func NewEnvironment(opts ...Option) *Environment {
	e := &Environment{}
	e.init("sim-environment", opts)
	return e
}

func (e *Environment) Read(ctx context.Context) ([]byte, error) {
	n, err := e.next(ctx)
	if err != nil {
		return nil, err
	}
	x := float64(n)
	return domain.Environment{
		PressureHPa:  float32(1013.25 - e.climb*x + 0.02*math.Sin(x/5)),
		TemperatureC: float32(21 + 0.5*math.Sin(x/50)),
		HumidityPct:  float32(45 + 2*math.Cos(x/40)),
	}.Bytes(), nil
}

type Accelerometer struct{ base }

func NewAccelerometer(opts ...Option) *Accelerometer {
	a := &Accelerometer{}
	a.init("sim-accelerometer", opts)
	return a
}

func (a *Accelerometer) Read(ctx context.Context) ([]byte, error) {
	n, err := a.next(ctx)
	if err != nil {
		return nil, err
	}
	x := float64(n)
	return domain.Acceleration{
		X: float32(0.05 * math.Sin(x/3)),
		Y: float32(0.05 * math.Cos(x/3)),
		Z: float32(9.81 + 0.02*math.Sin(x)),
	}.Bytes(), nil
}

// Position reports no fix for the first few reads, then a slow drift
// around a fixed launch site.
type Position struct {
	base
	acquire int
}

func NewPosition(opts ...Option) *Position {
	p := &Position{acquire: 4}
	p.init("sim-position", opts)
	return p
}

func (p *Position) Read(ctx context.Context) ([]byte, error) {
	n, err := p.next(ctx)
	if err != nil {
		return nil, err
	}
	if n <= p.acquire {
		return domain.NoFix().Bytes(), nil
	}
	x := float64(n)
	return domain.Position{
		Latitude:  48.1351 + 1e-5*x,
		Longitude: 11.5820 + 5e-6*x,
		AltitudeM: float32(519 + 0.4*x),
	}.Bytes(), nil
}

var (
	_ ports.Driver = (*Environment)(nil)
	_ ports.Driver = (*Accelerometer)(nil)
	_ ports.Driver = (*Position)(nil)
)
