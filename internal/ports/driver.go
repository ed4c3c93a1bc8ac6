package ports

import "context"

// Driver is an instrument that yields one raw measurement per Read. Any
// error is fatal to the producer that owns it.
type Driver interface {
	Read(ctx context.Context) ([]byte, error)
	Name() string
}
