//go:build !linux

package serial

import (
	"errors"
	"fmt"
)

func baudFlag(rate int) (uint32, error) {
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedBaud, rate)
}

func Open(cfg Config) (*Port, error) {
	return nil, errors.New("serial: only supported on linux")
}
