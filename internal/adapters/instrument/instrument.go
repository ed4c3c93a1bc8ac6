// Package instrument builds the configured driver for each instrument role.
package instrument

import (
	"errors"
	"fmt"
	"io"

	"github.com/orbisat/orbisat/internal/adapters/instrument/gnss"
	"github.com/orbisat/orbisat/internal/adapters/instrument/iio"
	"github.com/orbisat/orbisat/internal/adapters/instrument/sim"
	"github.com/orbisat/orbisat/internal/adapters/opcua"
	"github.com/orbisat/orbisat/internal/adapters/serial"
	"github.com/orbisat/orbisat/internal/ports"
)

type Role string

const (
	RoleEnvironment   Role = "environment"
	RoleAccelerometer Role = "accelerometer"
	RolePosition      Role = "position"
)

type Kind string

const (
	KindSim   Kind = "sim"
	KindIIO   Kind = "iio"
	KindGNSS  Kind = "gnss"
	KindOPCUA Kind = "opcua"
)

// Config selects and parameterises one driver.
type Config struct {
	Kind   Kind          `yaml:"kind"`
	Dir    string        `yaml:"dir"`    // iio sysfs device directory
	Serial serial.Config `yaml:"serial"` // gnss receiver line
	OPCUA  opcua.Config  `yaml:"opcua"`
}

// Set holds the configuration of every instrument role.
type Set struct {
	Environment   Config `yaml:"environment"`
	Accelerometer Config `yaml:"accelerometer"`
	Position      Config `yaml:"position"`
}

func (s *Set) ApplyDefaults() {
	for _, c := range []*Config{&s.Environment, &s.Accelerometer, &s.Position} {
		if c.Kind == "" {
			c.Kind = KindSim
		}
		if c.Kind == KindGNSS && c.Serial.Baud == 0 {
			c.Serial.Baud = 9600
		}
		if c.Kind == KindOPCUA {
			c.OPCUA.ApplyDefaults()
		}
	}
}

func (s *Set) Validate() error {
	var errs []error
	for role, c := range map[Role]Config{
		RoleEnvironment:   s.Environment,
		RoleAccelerometer: s.Accelerometer,
		RolePosition:      s.Position,
	} {
		if err := c.validate(role); err != nil {
			errs = append(errs, fmt.Errorf("instruments.%s: %w", role, err))
		}
	}
	return errors.Join(errs...)
}

func (c Config) validate(role Role) error {
	switch c.Kind {
	case KindSim:
		return nil
	case KindIIO:
		if role == RolePosition {
			return errors.New("iio cannot provide a position")
		}
		if c.Dir == "" {
			return errors.New("dir is required for iio")
		}
	case KindGNSS:
		if role != RolePosition {
			return fmt.Errorf("gnss can only provide a position, not %s", role)
		}
		if c.Serial.Device == "" {
			return errors.New("serial.device is required for gnss")
		}
	case KindOPCUA:
		return c.OPCUA.Validate()
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
	return nil
}

// Open builds the driver for role. The returned closer releases any
// session or line held by the driver and is never nil.
func Open(role Role, c Config) (ports.Driver, io.Closer, error) {
	if err := c.validate(role); err != nil {
		return nil, nil, err
	}
	switch c.Kind {
	case KindIIO:
		if role == RoleEnvironment {
			return iio.NewEnvironment(c.Dir), nopCloser{}, nil
		}
		return iio.NewAccelerometer(c.Dir), nopCloser{}, nil
	case KindGNSS:
		r, err := gnss.Open(c.Serial)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case KindOPCUA:
		d, err := opcua.NewDriver("opcua-"+string(role), c.OPCUA)
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	default:
		return simDriver(role), nopCloser{}, nil
	}
}

func simDriver(role Role) ports.Driver {
	switch role {
	case RoleAccelerometer:
		return sim.NewAccelerometer()
	case RolePosition:
		return sim.NewPosition()
	default:
		return sim.NewEnvironment()
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
