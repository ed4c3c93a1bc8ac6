package ports

import "github.com/orbisat/orbisat/internal/domain"

// PacketLog is the append-only durable record of every packet observed
// by the log writer during one process lifetime.
type PacketLog interface {
	Append(p domain.Packet) error
	Stats() PacketLogStats
	Close() error
}

type PacketLogStats struct {
	Path      string
	Records   uint64
	SizeBytes int64
}
