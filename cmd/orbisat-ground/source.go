package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/orbisat/orbisat/internal/adapters/logstore"
	"github.com/orbisat/orbisat/internal/adapters/serial"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

// sourceFlags selects where packets are read from.
type sourceFlags struct {
	raw    bool
	device string
	baud   int
}

func (s *sourceFlags) addFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&s.raw, "raw", false, "treat files as raw uplink captures instead of packet logs")
	fs.StringVar(&s.device, "device", "", "read frames from a live serial device")
	fs.IntVar(&s.baud, "baud", 19200, "serial baud rate for --device")
}

// namedSource is one input stream together with the handle that releases it.
type namedSource struct {
	name string
	src  ports.Source
	io.Closer
	torn func() bool
}

// open returns the sources in the order they should be read. A live device
// excludes file arguments.
func (s *sourceFlags) open(ctx context.Context, files []string) ([]namedSource, error) {
	if s.device != "" {
		if len(files) > 0 {
			return nil, errors.New("--device cannot be combined with file arguments")
		}
		port, err := serial.Open(serial.Config{Device: s.device, Baud: s.baud})
		if err != nil {
			return nil, err
		}
		// the blocking read only returns once the port is closed
		context.AfterFunc(ctx, func() { _ = port.Close() })
		return []namedSource{{name: port.Name(), src: newFrameSource(port), Closer: port}}, nil
	}
	if len(files) == 0 {
		return nil, errors.New("no input files")
	}

	out := make([]namedSource, 0, len(files))
	for _, path := range files {
		if s.raw {
			f, err := os.Open(path)
			if err != nil {
				closeSources(out)
				return nil, err
			}
			fs := newFrameSource(f)
			out = append(out, namedSource{name: path, src: fs, Closer: f, torn: fs.Torn})
			continue
		}
		r, err := logstore.Open(path)
		if err != nil {
			closeSources(out)
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, namedSource{name: path, src: r, Closer: r, torn: r.Torn})
	}
	return out, nil
}

func closeSources(srcs []namedSource) {
	for _, s := range srcs {
		_ = s.Close()
	}
}

// frameSource decodes back-to-back frames from an uncompressed byte stream.
type frameSource struct {
	frames *domain.FrameReader
	torn   bool
}

func newFrameSource(r io.Reader) *frameSource {
	return &frameSource{frames: domain.NewFrameReader(r)}
}

// Recv returns io.EOF at the end of the stream, after a torn final frame,
// and once ctx is done while a read was blocked.
func (s *frameSource) Recv(ctx context.Context) (domain.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, io.EOF
	}
	p, err := s.frames.Next()
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.torn = true
		return nil, io.EOF
	case ctx.Err() != nil:
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("offset %d: %w", s.frames.Offset(), err)
	}
}

func (s *frameSource) Torn() bool { return s.torn }

var _ ports.Source = (*frameSource)(nil)
