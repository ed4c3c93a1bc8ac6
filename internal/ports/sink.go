package ports

import "github.com/orbisat/orbisat/internal/domain"

// Sink stores batches of decoded telemetry on the ground side.
type Sink interface {
	WriteBatch(packets []domain.TmPacket) error
	Name() string
}
