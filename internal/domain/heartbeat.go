package domain

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Heartbeat is the system status carried by DeviceSystem packets, encoded
// as the CBOR array [seq, uptime_ms, boot_id].
type Heartbeat struct {
	_        struct{} `cbor:",toarray"`
	Seq      uint64
	UptimeMS uint64
	BootID   []byte
}

func (h Heartbeat) Payload() (Payload, error) {
	b, err := cbor.Marshal(h)
	if err != nil {
		return Payload{}, fmt.Errorf("heartbeat encode: %w", err)
	}
	return NewPayload(b)
}

func ParseHeartbeat(b []byte) (Heartbeat, error) {
	var h Heartbeat
	if err := cbor.Unmarshal(b, &h); err != nil {
		return Heartbeat{}, fmt.Errorf("heartbeat decode: %w", err)
	}
	return h, nil
}
