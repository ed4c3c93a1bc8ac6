package logstore

import (
	"bufio"
	"context"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

var (
	ErrNoDigest       = errors.New("digest sidecar missing")
	ErrDigestMismatch = errors.New("log digest mismatch")
)

// ScanResult summarises one pass over a log.
type ScanResult struct {
	Records uint64
	Bytes   int64 // frame bytes consumed, after decompression
	Torn    bool  // the log ended mid-frame
}

// Reader yields packets from a log file in write order.
type Reader struct {
	f       *os.File
	release func()
	frames  *domain.FrameReader
	torn    bool
}

// Open opens a log for reading. Compression is chosen from the suffix.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return newReader(f, compressionFromPath(path))
}

func newReader(f *os.File, c Compression) (*Reader, error) {
	r, release, err := newStreamReader(c, bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, release: release, frames: domain.NewFrameReader(r)}, nil
}

// Next returns the next packet or io.EOF. A log whose last frame was cut
// short by a crash ends with io.EOF too; Torn reports it.
func (r *Reader) Next() (domain.Packet, error) {
	p, err := r.frames.Next()
	if errors.Is(err, io.ErrUnexpectedEOF) {
		r.torn = true
		return nil, io.EOF
	}
	return p, err
}

// Recv adapts the reader to ports.Source for the ground ingest pipeline.
func (r *Reader) Recv(ctx context.Context) (domain.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Next()
}

func (r *Reader) Torn() bool    { return r.torn }
func (r *Reader) Offset() int64 { return r.frames.Offset() }

func (r *Reader) Close() error {
	r.release()
	return r.f.Close()
}

// Iterate calls fn for every packet in the log at path.
func Iterate(path string, fn func(domain.Packet) error) (ScanResult, error) {
	r, err := Open(path)
	if err != nil {
		return ScanResult{}, err
	}
	defer r.Close()

	var res ScanResult
	for {
		p, err := r.Next()
		if errors.Is(err, io.EOF) {
			res.Torn = r.Torn()
			res.Bytes = r.Offset()
			return res, nil
		}
		if err != nil {
			res.Bytes = r.Offset()
			return res, fmt.Errorf("%s at offset %d: %w", path, r.Offset(), err)
		}
		res.Records++
		if err := fn(p); err != nil {
			return res, err
		}
	}
}

// Digest hashes the file at path as stored on disk.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks path against its ".b3" sidecar.
func Verify(path string) error {
	side, err := os.ReadFile(path + DigestSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNoDigest)
	}
	if err != nil {
		return err
	}
	fields := strings.Fields(string(side))
	if len(fields) == 0 {
		return fmt.Errorf("%s: empty sidecar: %w", path, ErrNoDigest)
	}
	want, err := hex.DecodeString(fields[0])
	if err != nil {
		return fmt.Errorf("%s: sidecar: %w", path, err)
	}
	got, err := Digest(path)
	if err != nil {
		return err
	}
	gotRaw, _ := hex.DecodeString(got)
	if !bytes.Equal(want, gotRaw) {
		return fmt.Errorf("%s: %w", path, ErrDigestMismatch)
	}
	return nil
}

var _ ports.Source = (*Reader)(nil)
