package instrument

import (
	"strings"
	"testing"

	"github.com/orbisat/orbisat/internal/adapters/instrument/sim"
	"github.com/orbisat/orbisat/internal/adapters/serial"
)

func TestDefaultsToSim(t *testing.T) {
	var set Set
	set.ApplyDefaults()
	if err := set.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	d, closer, err := Open(RolePosition, set.Position)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closer.Close()
	if _, ok := d.(*sim.Position); !ok {
		t.Fatalf("expected sim position driver, got %T", d)
	}
}

func TestValidateRejectsMismatchedRoles(t *testing.T) {
	set := Set{
		Environment: Config{Kind: KindGNSS, Serial: serialCfg("/dev/ttyS0")},
		Position:    Config{Kind: KindIIO, Dir: "/sys/bus/iio/devices/iio:device0"},
	}
	set.ApplyDefaults()
	err := set.Validate()
	if err == nil {
		t.Fatalf("expected role mismatch errors")
	}
	for _, want := range []string{"instruments.environment", "instruments.position"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestOpenIIO(t *testing.T) {
	d, _, err := Open(RoleAccelerometer, Config{Kind: KindIIO, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !strings.HasPrefix(d.Name(), "iio-accelerometer") {
		t.Fatalf("unexpected driver %s", d.Name())
	}
}

func serialCfg(dev string) serial.Config { return serial.Config{Device: dev, Baud: 9600} }
