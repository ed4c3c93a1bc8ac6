package domain

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Fixed little-endian payload layouts produced by the instrument drivers.
const (
	EnvironmentSize  = 12 // pressure hPa, temperature °C, humidity %RH as f32
	AccelerationSize = 12 // x, y, z in m/s² as f32
	PositionSize     = 20 // lat f64, lon f64, alt f32 (meters)
	AltitudeSize     = 8  // altitude m f32, vertical speed m/s f32
)

type Environment struct {
	PressureHPa  float32
	TemperatureC float32
	HumidityPct  float32
}

func (e Environment) Bytes() []byte {
	return putF32s(make([]byte, EnvironmentSize), e.PressureHPa, e.TemperatureC, e.HumidityPct)
}

func ParseEnvironment(b []byte) (Environment, error) {
	if len(b) != EnvironmentSize {
		return Environment{}, sizeErr("environment", EnvironmentSize, len(b))
	}
	return Environment{f32(b, 0), f32(b, 4), f32(b, 8)}, nil
}

type Acceleration struct {
	X, Y, Z float32
}

func (a Acceleration) Bytes() []byte {
	return putF32s(make([]byte, AccelerationSize), a.X, a.Y, a.Z)
}

func ParseAcceleration(b []byte) (Acceleration, error) {
	if len(b) != AccelerationSize {
		return Acceleration{}, sizeErr("acceleration", AccelerationSize, len(b))
	}
	return Acceleration{f32(b, 0), f32(b, 4), f32(b, 8)}, nil
}

// Position is a GNSS fix. All fields are NaN when the receiver has none.
type Position struct {
	Latitude  float64
	Longitude float64
	AltitudeM float32
}

func NoFix() Position {
	return Position{math.NaN(), math.NaN(), float32(math.NaN())}
}

func (p Position) HasFix() bool { return !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude) }

func (p Position) Bytes() []byte {
	b := make([]byte, PositionSize)
	binary.LittleEndian.PutUint64(b[0:8], math.Float64bits(p.Latitude))
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(p.Longitude))
	binary.LittleEndian.PutUint32(b[16:20], math.Float32bits(p.AltitudeM))
	return b
}

func ParsePosition(b []byte) (Position, error) {
	if len(b) != PositionSize {
		return Position{}, sizeErr("position", PositionSize, len(b))
	}
	return Position{
		Latitude:  math.Float64frombits(binary.LittleEndian.Uint64(b[0:8])),
		Longitude: math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
		AltitudeM: f32(b, 16),
	}, nil
}

// Altitude is the derived barometric altitude published by the monitor.
type Altitude struct {
	AltitudeM float32
	SpeedMPS  float32
}

func (a Altitude) Bytes() []byte {
	return putF32s(make([]byte, AltitudeSize), a.AltitudeM, a.SpeedMPS)
}

func ParseAltitude(b []byte) (Altitude, error) {
	if len(b) != AltitudeSize {
		return Altitude{}, sizeErr("altitude", AltitudeSize, len(b))
	}
	return Altitude{f32(b, 0), f32(b, 4)}, nil
}

// F32 reads the little-endian float32 at byte offset off of b.
func F32(b []byte, off int) (float32, error) {
	if off < 0 || len(b) < off+4 {
		return 0, sizeErr("f32", off+4, len(b))
	}
	return f32(b, off), nil
}

func putF32s(b []byte, vs ...float32) []byte {
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func f32(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
}

func sizeErr(what string, want, got int) error {
	return fmt.Errorf("%s payload: expected %d bytes, got %d", what, want, got)
}

// Values decodes a packet into named readings for storage backends.
// Unknown layouts yield nil.
func Values(tm TmPacket) map[string]float64 {
	b := tm.Payload.Bytes()
	switch tm.Device {
	case DevicePressure, DeviceTemperature, DeviceHumidity:
		if len(b) != 4 {
			return nil
		}
		key := map[DeviceID]string{DevicePressure: "hpa", DeviceTemperature: "celsius", DeviceHumidity: "rh_pct"}[tm.Device]
		return map[string]float64{key: float64(f32(b, 0))}
	case DeviceAccelerometer:
		if a, err := ParseAcceleration(b); err == nil {
			return map[string]float64{"x": float64(a.X), "y": float64(a.Y), "z": float64(a.Z)}
		}
	case DeviceGPS:
		if p, err := ParsePosition(b); err == nil && p.HasFix() {
			out := map[string]float64{"lat": p.Latitude, "lon": p.Longitude}
			if !math.IsNaN(float64(p.AltitudeM)) {
				out["alt_m"] = float64(p.AltitudeM)
			}
			return out
		}
	case DeviceAltimeter:
		if a, err := ParseAltitude(b); err == nil {
			return map[string]float64{"alt_m": float64(a.AltitudeM), "speed_mps": float64(a.SpeedMPS)}
		}
	case DeviceSystem:
		if h, err := ParseHeartbeat(b); err == nil {
			return map[string]float64{"seq": float64(h.Seq), "uptime_ms": float64(h.UptimeMS)}
		}
	}
	return nil
}
