package orbisat

import (
	"github.com/orbisat/orbisat/internal/adapters/instrument"
	"github.com/orbisat/orbisat/internal/app/pipeline"
	"github.com/orbisat/orbisat/internal/bus"
	"github.com/orbisat/orbisat/internal/clock"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

// Packet is the envelope carried by the bus, the uplink queue and the log.
type Packet = domain.Packet

// TmPacket is a stamped instrument measurement.
type TmPacket = domain.TmPacket

// DeviceID names the origin of a packet.
type DeviceID = domain.DeviceID

// Timestamp is nanoseconds since the Unix epoch, assigned at publish.
type Timestamp = domain.Timestamp

// Payload is the bounded instrument encoding inside a TmPacket.
type Payload = domain.Payload

// Driver yields one raw measurement per Read. Any error stops the runtime.
type Driver = ports.Driver

// Transport is the outbound frame sink toward the ground link.
type Transport = ports.Transport

// PacketLog is the durable append-only record of observed packets.
type PacketLog = ports.PacketLog

// PacketLogStats exposes PacketLog metadata.
type PacketLogStats = ports.PacketLogStats

// Observability emits structured logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Clock supplies time and tickers to every task.
type Clock = clock.Clock

// BusStats is a snapshot of the fan-out bus counters.
type BusStats = bus.Stats

// Role selects which instrument a driver stands in for.
type Role = instrument.Role

const (
	RoleEnvironment   = instrument.RoleEnvironment
	RoleAccelerometer = instrument.RoleAccelerometer
	RolePosition      = instrument.RolePosition
)

const (
	DeviceSystem        = domain.DeviceSystem
	DevicePressure      = domain.DevicePressure
	DeviceTemperature   = domain.DeviceTemperature
	DeviceHumidity      = domain.DeviceHumidity
	DeviceGPS           = domain.DeviceGPS
	DeviceAccelerometer = domain.DeviceAccelerometer
	DeviceAltimeter     = domain.DeviceAltimeter
)

// Describe renders p the way the console reporter does, decoding the
// payload for known devices and falling back to hex.
func Describe(p TmPacket) string { return pipeline.Describe(p) }
