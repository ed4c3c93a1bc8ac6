package iio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/orbisat/orbisat/internal/domain"
)

func writeAttrs(t *testing.T, attrs map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "iio:device0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, val := range attrs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(val+"\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestEnvironmentUnits(t *testing.T) {
	dir := writeAttrs(t, map[string]string{
		"in_pressure_input":         "101.325",
		"in_temp_input":             "21500",
		"in_humidityrelative_input": "40250",
	})
	b, err := NewEnvironment(dir).Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := domain.ParseEnvironment(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.PressureHPa != 1013.25 || env.TemperatureC != 21.5 || env.HumidityPct != 40.25 {
		t.Fatalf("unexpected reading %+v", env)
	}
}

func TestAccelerometerScale(t *testing.T) {
	dir := writeAttrs(t, map[string]string{
		"in_accel_scale": "0.5",
		"in_accel_x_raw": "2",
		"in_accel_y_raw": "-4",
		"in_accel_z_raw": "20",
	})
	b, err := NewAccelerometer(dir).Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	acc, _ := domain.ParseAcceleration(b)
	if acc != (domain.Acceleration{X: 1, Y: -2, Z: 10}) {
		t.Fatalf("unexpected reading %+v", acc)
	}
}

func TestMissingChannelFails(t *testing.T) {
	dir := writeAttrs(t, map[string]string{"in_pressure_input": "100"})
	if _, err := NewEnvironment(dir).Read(context.Background()); err == nil {
		t.Fatalf("expected missing temperature channel to fail the read")
	}
}
