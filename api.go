package orbisat

import (
	base "github.com/orbisat/orbisat/pkg/orbisat"
)

// Re-exported errors for convenience.
var (
	ErrAlreadyStarted        = base.ErrAlreadyStarted
	ErrChannelConsumerClosed = base.ErrChannelConsumerClosed
	ErrProducerClosed        = base.ErrProducerClosed
)

// Type aliases so consumers can import github.com/orbisat/orbisat directly.
type (
	Config           = base.Config
	Policy           = base.Policy
	LogConfig        = base.LogConfig
	ConsoleConfig    = base.ConsoleConfig
	UplinkConfig     = base.UplinkConfig
	SerialConfig     = base.SerialConfig
	InstrumentConfig = base.InstrumentConfig
	InstrumentSet    = base.InstrumentSet
	OPCUAConfig      = base.OPCUAConfig
	AltitudeConfig   = base.AltitudeConfig
	MetricsConfig    = base.MetricsConfig
	LoggingConfig    = base.LoggingConfig
	GroundConfig     = base.GroundConfig
	Flow             = base.Flow
	FlowOption       = base.FlowOption
	StreamInOption   = base.StreamInOption
	StreamOutOption  = base.StreamOutOption
	Runtime          = base.Runtime
	RuntimeOption    = base.RuntimeOption
	RuntimeStats     = base.RuntimeStats
	ExternalProducer = base.ExternalProducer
	Consumer         = base.Consumer
	PacketHandler    = base.PacketHandler
	Packet           = base.Packet
	TmPacket         = base.TmPacket
	DeviceID         = base.DeviceID
	Timestamp        = base.Timestamp
	Payload          = base.Payload
	Driver           = base.Driver
	Transport        = base.Transport
	PacketLog        = base.PacketLog
	PacketLogStats   = base.PacketLogStats
	Observability    = base.Observability
	Field            = base.Field
	Clock            = base.Clock
	BusStats         = base.BusStats
	Role             = base.Role
)

const (
	RoleEnvironment   = base.RoleEnvironment
	RoleAccelerometer = base.RoleAccelerometer
	RolePosition      = base.RolePosition

	DeviceSystem        = base.DeviceSystem
	DevicePressure      = base.DevicePressure
	DeviceTemperature   = base.DeviceTemperature
	DeviceHumidity      = base.DeviceHumidity
	DeviceGPS           = base.DeviceGPS
	DeviceAccelerometer = base.DeviceAccelerometer
	DeviceAltimeter     = base.DeviceAltimeter
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInDriver(role Role, drv Driver) StreamInOption {
	return base.StreamInDriver(role, drv)
}

func StreamInClock(c Clock) StreamInOption {
	return base.StreamInClock(c)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutConsumer(c Consumer) StreamOutOption {
	return base.StreamOutConsumer(c)
}

func StreamOutCallback(name string, fn PacketHandler) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

func StreamOutTransport(tr Transport) StreamOutOption {
	return base.StreamOutTransport(tr)
}

func StreamOutPacketLog(l PacketLog) StreamOutOption {
	return base.StreamOutPacketLog(l)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithDriver(role Role, drv Driver) RuntimeOption {
	return base.WithDriver(role, drv)
}

func WithConsumer(c Consumer) RuntimeOption {
	return base.WithConsumer(c)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithClock(c Clock) RuntimeOption {
	return base.WithClock(c)
}

func WithTransport(tr Transport) RuntimeOption {
	return base.WithTransport(tr)
}

func WithPacketLog(l PacketLog) RuntimeOption {
	return base.WithPacketLog(l)
}

// Consumer adapters.
func NewCallbackConsumer(name string, fn PacketHandler) Consumer {
	return base.NewCallbackConsumer(name, fn)
}

func NewChannelConsumer(name string, buffer int) (Consumer, <-chan TmPacket, func()) {
	return base.NewChannelConsumer(name, buffer)
}

func Describe(p TmPacket) string {
	return base.Describe(p)
}
