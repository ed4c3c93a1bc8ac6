package ports

import (
	"context"

	"github.com/orbisat/orbisat/internal/domain"
)

// Endpoint accepts published packets. The fan-out bus never blocks; the
// point-to-point uplink queue blocks while full.
type Endpoint interface {
	Publish(ctx context.Context, p domain.Packet) error
}

// Source yields packets in order until closed.
type Source interface {
	Recv(ctx context.Context) (domain.Packet, error)
}
