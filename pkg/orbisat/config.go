package orbisat

import (
	"github.com/orbisat/orbisat/internal/adapters/instrument"
	"github.com/orbisat/orbisat/internal/adapters/logstore"
	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/adapters/opcua"
	"github.com/orbisat/orbisat/internal/adapters/serial"
	"github.com/orbisat/orbisat/internal/app/config"
	"github.com/orbisat/orbisat/internal/app/pipeline"
	"github.com/orbisat/orbisat/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy holds capacities and task pacing.
	Policy = ports.Policy
	// LogConfig selects the durable log directory, compression and digest.
	LogConfig = logstore.Config
	// ConsoleConfig toggles the console reporter.
	ConsoleConfig = config.ConsoleConfig
	// UplinkConfig configures the serial ground link.
	UplinkConfig = config.UplinkConfig
	// SerialConfig names a serial device and its baud rate.
	SerialConfig = serial.Config
	// InstrumentConfig selects and parameterises one driver.
	InstrumentConfig = instrument.Config
	// InstrumentSet holds every instrument role.
	InstrumentSet = instrument.Set
	// OPCUAConfig holds connection and node details for bench instruments.
	OPCUAConfig = opcua.Config
	// AltitudeConfig tunes the altitude monitor.
	AltitudeConfig = pipeline.AltitudeConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// LoggingConfig configures the slog handler.
	LoggingConfig = observability.LoggingConfig
	// GroundConfig configures the ground ingest sinks.
	GroundConfig = config.GroundConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns a Config with every default filled in: simulated
// instruments, console on, uplink and metrics off.
func DefaultConfig() *Config {
	return config.Default()
}
