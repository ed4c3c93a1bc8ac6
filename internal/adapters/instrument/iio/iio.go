// Package iio reads instruments exposed by the Linux industrial I/O
// subsystem through sysfs, e.g. a BME280 or an MMA8452 bound to its
// kernel driver under /sys/bus/iio/devices/iio:deviceN.
package iio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

// Environment reads pressure (kPa), temperature (m°C) and relative
// humidity (m%) channels and reports hPa, °C and %RH.
type Environment struct {
	dir string
}

func NewEnvironment(dir string) *Environment { return &Environment{dir: dir} }

func (e *Environment) Name() string { return "iio-environment:" + filepath.Base(e.dir) }

func (e *Environment) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kpa, err := readFloat(e.dir, "in_pressure_input")
	if err != nil {
		return nil, err
	}
	mdeg, err := readFloat(e.dir, "in_temp_input")
	if err != nil {
		return nil, err
	}
	mpct, err := readFloat(e.dir, "in_humidityrelative_input")
	if err != nil {
		return nil, err
	}
	return domain.Environment{
		PressureHPa:  float32(kpa * 10),
		TemperatureC: float32(mdeg / 1000),
		HumidityPct:  float32(mpct / 1000),
	}.Bytes(), nil
}

// Accelerometer reads raw x/y/z channels and applies in_accel_scale.
type Accelerometer struct {
	dir string
}

func NewAccelerometer(dir string) *Accelerometer { return &Accelerometer{dir: dir} }

func (a *Accelerometer) Name() string { return "iio-accelerometer:" + filepath.Base(a.dir) }

func (a *Accelerometer) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scale, err := readFloat(a.dir, "in_accel_scale")
	if err != nil {
		return nil, err
	}
	var axes [3]float32
	for i, axis := range []string{"x", "y", "z"} {
		raw, err := readFloat(a.dir, "in_accel_"+axis+"_raw")
		if err != nil {
			return nil, err
		}
		axes[i] = float32(raw * scale)
	}
	return domain.Acceleration{X: axes[0], Y: axes[1], Z: axes[2]}.Bytes(), nil
}

func readFloat(dir, attr string) (float64, error) {
	raw, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return 0, fmt.Errorf("iio %s: %w", attr, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("iio %s: %w", attr, err)
	}
	return v, nil
}

var (
	_ ports.Driver = (*Environment)(nil)
	_ ports.Driver = (*Accelerometer)(nil)
)
