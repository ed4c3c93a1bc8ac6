package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orbisat/orbisat/internal/adapters/instrument"
	"github.com/orbisat/orbisat/internal/adapters/logstore"
	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/adapters/serial"
	"github.com/orbisat/orbisat/internal/app/pipeline"
	"github.com/orbisat/orbisat/internal/ports"
)

type Config struct {
	Policy      ports.Policy                `yaml:"policy"`
	Log         logstore.Config             `yaml:"log"`
	Console     ConsoleConfig               `yaml:"console"`
	Uplink      UplinkConfig                `yaml:"uplink"`
	Instruments instrument.Set              `yaml:"instruments"`
	Altitude    pipeline.AltitudeConfig     `yaml:"altitude"`
	Metrics     MetricsConfig               `yaml:"metrics"`
	Logging     observability.LoggingConfig `yaml:"logging"`
	Ground      GroundConfig                `yaml:"ground"`
}

type ConsoleConfig struct {
	Enabled *bool              `yaml:"enabled"`
	Color   pipeline.ColorMode `yaml:"color"`
}

// On reports whether the console reporter runs. It defaults to on.
func (c ConsoleConfig) On() bool { return c.Enabled == nil || *c.Enabled }

type UplinkConfig struct {
	Enabled bool          `yaml:"enabled"`
	Serial  serial.Config `yaml:",inline"`
	// DirectHeartbeat routes heartbeats straight into the uplink queue
	// instead of through the bus.
	DirectHeartbeat bool `yaml:"direct_heartbeat"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the HTTP server
}

type GroundConfig struct {
	Timescale TimescaleConfig `yaml:"timescale"`
	NATS      NATSConfig      `yaml:"nats"`
	BatchSize int             `yaml:"batch_size"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type NATSConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML, fills defaults and validates. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Validate fills defaults into a Config built in code and checks it the
// same way Load does.
func (c *Config) Validate() error {
	c.applyDefaults()
	return c.validate()
}

func (c *Config) applyDefaults() {
	if c.Policy.BusCapacity == 0 {
		c.Policy.BusCapacity = 256
	}
	if c.Policy.UplinkQueueLen == 0 {
		c.Policy.UplinkQueueLen = 64
	}
	if c.Policy.SensorInterval == 0 {
		c.Policy.SensorInterval = 250 * time.Millisecond
	}
	if c.Policy.AccelInterval == 0 {
		c.Policy.AccelInterval = 100 * time.Millisecond
	}
	if c.Policy.GPSInterval == 0 {
		c.Policy.GPSInterval = 250 * time.Millisecond
	}
	if c.Policy.HeartbeatInterval == 0 {
		c.Policy.HeartbeatInterval = 500 * time.Millisecond
	}
	if c.Policy.GaugeInterval == 0 {
		c.Policy.GaugeInterval = 5 * time.Second
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "."
	}
	if c.Log.Compression == "" {
		c.Log.Compression = logstore.CompressionNone
	}
	if c.Console.Color == "" {
		c.Console.Color = pipeline.ColorAuto
	}
	if c.Uplink.Serial.Baud == 0 {
		c.Uplink.Serial.Baud = 19200
	}
	if c.Ground.Timescale.Table == "" {
		c.Ground.Timescale.Table = "telemetry"
	}
	if c.Ground.BatchSize == 0 {
		c.Ground.BatchSize = 500
	}

	c.Instruments.ApplyDefaults()
	c.Altitude.ApplyDefaults()
	c.Logging.ApplyDefaults()
}

func (c *Config) validate() error {
	var errs []error
	for name, v := range map[string]int{
		"policy.bus_capacity":     c.Policy.BusCapacity,
		"policy.uplink_queue_len": c.Policy.UplinkQueueLen,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	for name, d := range map[string]time.Duration{
		"policy.sensor_interval":    c.Policy.SensorInterval,
		"policy.accel_interval":     c.Policy.AccelInterval,
		"policy.gps_interval":       c.Policy.GPSInterval,
		"policy.heartbeat_interval": c.Policy.HeartbeatInterval,
		"policy.gauge_interval":     c.Policy.GaugeInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if _, err := logstore.ParseCompression(string(c.Log.Compression)); err != nil {
		errs = append(errs, fmt.Errorf("log.compression: %w", err))
	}
	switch c.Console.Color {
	case pipeline.ColorAuto, pipeline.ColorAlways, pipeline.ColorNever:
	default:
		errs = append(errs, fmt.Errorf("console.color: unknown mode %q", c.Console.Color))
	}
	if c.Uplink.Enabled && c.Uplink.Serial.Device == "" {
		errs = append(errs, errors.New("uplink.device is required when the uplink is enabled"))
	}
	if c.Uplink.DirectHeartbeat && !c.Uplink.Enabled {
		errs = append(errs, errors.New("uplink.direct_heartbeat needs the uplink enabled"))
	}
	if err := c.Instruments.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	return errors.Join(errs...)
}
