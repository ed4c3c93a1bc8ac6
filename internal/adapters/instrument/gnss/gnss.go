// Package gnss turns an NMEA 0183 sentence stream from a positioning
// receiver into position payloads.
package gnss

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/adrianmo/go-nmea"

	"github.com/orbisat/orbisat/internal/adapters/serial"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

var ErrStreamEnded = errors.New("gnss: sentence stream ended")

// Receiver keeps the most recent fix seen on the stream. Read returns it
// without waiting for a new sentence, so the poller sets the pace.
type Receiver struct {
	name   string
	src    io.Reader
	closer io.Closer

	start sync.Once
	mu    sync.Mutex
	fix   domain.Position
	err   error

	sentences uint64
	rejected  uint64
}

func NewReceiver(name string, src io.Reader) *Receiver {
	r := &Receiver{name: name, src: src, fix: domain.NoFix()}
	if c, ok := src.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// Open attaches a receiver to a serial line.
func Open(cfg serial.Config) (*Receiver, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewReceiver("gnss:"+cfg.Device, port), nil
}

func (r *Receiver) Name() string { return r.name }

func (r *Receiver) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.start.Do(func() { go r.scan() })

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.fix.Bytes(), nil
}

// Stats reports parsed and rejected sentence counts.
func (r *Receiver) Stats() (sentences, rejected uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sentences, r.rejected
}

func (r *Receiver) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Receiver) scan() {
	sc := bufio.NewScanner(r.src)
	for sc.Scan() {
		r.Ingest(sc.Text())
	}
	err := sc.Err()
	if err == nil {
		err = ErrStreamEnded
	} else {
		err = fmt.Errorf("gnss: %w", err)
	}
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Ingest applies one raw sentence. Malformed or checksum-failing lines are
// counted and ignored; receivers emit them routinely while acquiring.
func (r *Receiver) Ingest(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	s, err := nmea.Parse(line)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.rejected++
		return
	}
	r.sentences++

	switch m := s.(type) {
	case nmea.GGA:
		if m.FixQuality == nmea.Invalid {
			r.fix = domain.NoFix()
			return
		}
		r.fix = domain.Position{Latitude: m.Latitude, Longitude: m.Longitude, AltitudeM: float32(m.Altitude)}
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			r.fix = domain.NoFix()
			return
		}
		// RMC carries no altitude; keep the last one from GGA
		alt := r.fix.AltitudeM
		r.fix = domain.Position{Latitude: m.Latitude, Longitude: m.Longitude, AltitudeM: alt}
	}
}

var _ ports.Driver = (*Receiver)(nil)
