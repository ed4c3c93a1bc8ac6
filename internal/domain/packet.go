package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxPayloadSize bounds every instrument payload carried by a packet.
const MaxPayloadSize = 64

// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

// DeviceID identifies the origin of a packet.
type DeviceID uint8

const (
	DeviceUnknown DeviceID = iota
	DeviceSystem
	DevicePressure
	DeviceTemperature
	DeviceHumidity
	DeviceGPS
	DeviceAccelerometer
	DeviceAltimeter
)

var deviceNames = [...]string{
	DeviceUnknown:       "unknown",
	DeviceSystem:        "system",
	DevicePressure:      "pressure",
	DeviceTemperature:   "temperature",
	DeviceHumidity:      "humidity",
	DeviceGPS:           "gps",
	DeviceAccelerometer: "accelerometer",
	DeviceAltimeter:     "altimeter",
}

// Devices lists every known DeviceID in wire order.
func Devices() []DeviceID {
	out := make([]DeviceID, len(deviceNames))
	for i := range deviceNames {
		out[i] = DeviceID(i)
	}
	return out
}

// Valid reports whether d belongs to the closed set of known devices.
func (d DeviceID) Valid() bool { return int(d) < len(deviceNames) }

func (d DeviceID) String() string {
	if !d.Valid() {
		return fmt.Sprintf("device(%d)", uint8(d))
	}
	return deviceNames[d]
}

// ParseDeviceID maps a device name back to its DeviceID.
func ParseDeviceID(name string) (DeviceID, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range deviceNames {
		if n == name {
			return DeviceID(i), nil
		}
	}
	return DeviceUnknown, fmt.Errorf("unknown device %q", name)
}

// Timestamp is a nanosecond count since the Unix epoch, assigned when a
// packet is published.
type Timestamp uint64

func TimestampFrom(t time.Time) Timestamp {
	ns := t.UnixNano()
	if ns < 0 {
		return 0
	}
	return Timestamp(ns)
}

func (t Timestamp) Time() time.Time { return time.Unix(0, int64(t)).UTC() }

// Payload is a bounded, instrument-specific byte encoding. The zero value
// is an empty payload.
type Payload struct {
	n    uint8
	data [MaxPayloadSize]byte
}

// NewPayload copies b into a Payload.
func NewPayload(b []byte) (Payload, error) {
	var p Payload
	if len(b) > MaxPayloadSize {
		return p, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(b), MaxPayloadSize)
	}
	p.n = uint8(copy(p.data[:], b))
	return p, nil
}

// MustPayload is NewPayload for constant inputs known to fit.
func MustPayload(b []byte) Payload {
	p, err := NewPayload(b)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Payload) Len() int { return int(p.n) }

// Bytes returns a copy of the payload contents.
func (p Payload) Bytes() []byte {
	out := make([]byte, p.n)
	copy(out, p.data[:p.n])
	return out
}

// Kind tags the packet envelope variant on the wire.
type Kind uint8

const (
	KindTelemetry Kind = 0x01
)

func (k Kind) String() string {
	switch k {
	case KindTelemetry:
		return "telemetry"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Packet is the envelope moved through the bus, the uplink queue and the
// codec. TmPacket is the only variant today.
type Packet interface {
	Kind() Kind
	isPacket()
}

// TmPacket is a stamped instrument measurement.
type TmPacket struct {
	Device    DeviceID
	Timestamp Timestamp
	Payload   Payload
}

func (TmPacket) Kind() Kind { return KindTelemetry }
func (TmPacket) isPacket()  {}

func (p TmPacket) String() string {
	return fmt.Sprintf("TmPacket{device=%s ts=%d payload=%x}", p.Device, p.Timestamp, p.Payload.Bytes())
}

var _ Packet = TmPacket{}
