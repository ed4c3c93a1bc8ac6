// Package serial opens a raw, byte-oriented serial line for the uplink
// radio and the GNSS receiver.
package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrUnsupportedBaud = errors.New("unsupported baud rate")

type Config struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// Port is an open serial line. Writes are passed to the driver unbuffered
// so one frame maps to one write.
type Port struct {
	f    *os.File
	name string
}

func (p *Port) Name() string { return p.name }

func (p *Port) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *Port) Close() error                { return p.f.Close() }

// WriteFrame writes frame in full, retrying short writes.
func (p *Port) WriteFrame(frame []byte) error {
	for len(frame) > 0 {
		n, err := p.f.Write(frame)
		if err != nil {
			return fmt.Errorf("serial %s: %w", p.name, err)
		}
		if n == 0 {
			return fmt.Errorf("serial %s: %w", p.name, io.ErrShortWrite)
		}
		frame = frame[n:]
	}
	return nil
}

var _ io.ReadWriteCloser = (*Port)(nil)
