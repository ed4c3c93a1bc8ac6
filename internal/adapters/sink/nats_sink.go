package sink

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

type publisher interface {
	Publish(subject string, data []byte) error
	Flush() error
}

// NATSSink republishes each packet as its encoded frame on
// "<prefix>.<device>", so ground consumers can decode with the same codec.
type NATSSink struct {
	pub    publisher
	conn   *nats.Conn
	prefix string
	buf    [domain.MaxEncodedSize]byte
}

func ConnectNATS(url, prefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("orbisat-ground"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	s := NewNATSSink(nc, prefix)
	s.conn = nc
	return s, nil
}

func NewNATSSink(pub publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "orbisat.telemetry"
	}
	return &NATSSink{pub: pub, prefix: prefix}
}

func (n *NATSSink) Name() string { return "nats" }

func (n *NATSSink) Subject(d domain.DeviceID) string { return n.prefix + "." + d.String() }

func (n *NATSSink) WriteBatch(packets []domain.TmPacket) error {
	for _, p := range packets {
		frame, err := domain.Encode(p, n.buf[:])
		if err != nil {
			return err
		}
		if err := n.pub.Publish(n.Subject(p.Device), frame); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
	}
	if len(packets) == 0 {
		return nil
	}
	return n.pub.Flush()
}

// Close drains the connection when the sink owns it.
func (n *NATSSink) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

var _ ports.Sink = (*NATSSink)(nil)
