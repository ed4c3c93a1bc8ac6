package domain

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	buf := make([]byte, MaxEncodedSize)
	for _, dev := range Devices() {
		for size := 0; size <= MaxPayloadSize; size++ {
			raw := make([]byte, size)
			for i := range raw {
				raw[i] = byte(i*7 + int(dev))
			}
			want := TmPacket{
				Device:    dev,
				Timestamp: Timestamp(1_700_000_000_000_000_000 + uint64(size)),
				Payload:   MustPayload(raw),
			}

			frame, err := Encode(want, buf)
			if err != nil {
				t.Fatalf("encode %s/%d: %v", dev, size, err)
			}
			if len(frame) != EncodedLen(want) {
				t.Fatalf("frame length %d, expected %d", len(frame), EncodedLen(want))
			}

			got, err := Decode(frame)
			if err != nil {
				t.Fatalf("decode %s/%d: %v", dev, size, err)
			}
			if got != Packet(want) {
				t.Fatalf("round trip mismatch: got %v want %v", got, want)
			}
		}
	}
}

func TestNewPayloadRejectsOversize(t *testing.T) {
	if _, err := NewPayload(make([]byte, MaxPayloadSize+1)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	p, err := NewPayload(make([]byte, MaxPayloadSize))
	if err != nil || p.Len() != MaxPayloadSize {
		t.Fatalf("expected max-size payload to fit, len=%d err=%v", p.Len(), err)
	}
}

func TestEncodeBufferTooSmall(t *testing.T) {
	p := TmPacket{Device: DeviceSystem, Payload: MustPayload([]byte("HEARTBEAT"))}
	if _, err := Encode(p, make([]byte, 8)); !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	buf := make([]byte, MaxEncodedSize)
	frame, err := Encode(TmPacket{Device: DeviceGPS, Timestamp: 42, Payload: MustPayload([]byte{1, 2, 3})}, buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	flipped := append([]byte(nil), frame...)
	flipped[12] ^= 0xFF
	if _, err := Decode(flipped); !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}

	if _, err := Decode(frame[:5]); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}

	badKind := append([]byte(nil), frame...)
	badKind[0] = 0x7F
	if _, err := Decode(badKind); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestFrameReaderBackToBack(t *testing.T) {
	var stream bytes.Buffer
	buf := make([]byte, MaxEncodedSize)
	var want []Packet
	for i := 0; i < 5; i++ {
		p := TmPacket{Device: DevicePressure, Timestamp: Timestamp(i), Payload: MustPayload(bytes.Repeat([]byte{byte(i)}, i))}
		frame, err := Encode(p, buf)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		stream.Write(frame)
		want = append(want, p)
	}
	stream.Write([]byte{byte(KindTelemetry), 0x02})

	fr := NewFrameReader(&stream)
	for i, w := range want {
		got, err := fr.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got != w {
			t.Fatalf("frame %d mismatch: got %v want %v", i, got, w)
		}
	}
	if _, err := fr.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected torn tail to report ErrUnexpectedEOF, got %v", err)
	}
}

func TestParseDeviceID(t *testing.T) {
	for _, dev := range Devices() {
		got, err := ParseDeviceID(dev.String())
		if err != nil || got != dev {
			t.Fatalf("parse %s: got %v err %v", dev, got, err)
		}
	}
	if _, err := ParseDeviceID("barometer"); err == nil {
		t.Fatalf("expected error for unknown device name")
	}
}
