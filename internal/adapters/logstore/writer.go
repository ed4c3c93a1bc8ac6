// Package logstore keeps the durable per-process packet log: encoded
// frames back-to-back in one file named after the process start time,
// optionally compressed, with a BLAKE3 digest sidecar written on close.
package logstore

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

const (
	filePrefix   = "TMPACKETS-"
	fileLayout   = "2006-01-02-15-04-05.000000000"
	DigestSuffix = ".b3"
)

type Config struct {
	Dir         string      `yaml:"dir"`
	Compression Compression `yaml:"compression"`
	Digest      bool        `yaml:"digest"`
}

// FileName returns the log name for a process started at t.
func FileName(t time.Time, c Compression) string {
	return filePrefix + t.UTC().Format(fileLayout) + "Z.log" + c.Ext()
}

// Writer appends packets to the log. It is owned by a single task; the
// mutex only guards Stats readers.
type Writer struct {
	mu      sync.Mutex
	path    string
	digest  bool
	file    *os.File
	hasher  *blake3.Hasher
	stream  streamWriter
	buf     *bufio.Writer
	scratch [domain.MaxEncodedSize]byte
	records uint64
	onDisk  int64
	closed  bool
}

// Create opens a fresh log in cfg.Dir for a process started at started.
// An existing file with the same name is an error.
func Create(cfg Config, started time.Time) (*Writer, error) {
	comp, err := ParseCompression(string(cfg.Compression))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(cfg.Dir, FileName(started, comp))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	w := &Writer{path: path, digest: cfg.Digest, file: f, hasher: blake3.New()}
	stream, err := newStreamWriter(comp, &countingWriter{w: f, hash: w.hasher, n: &w.onDisk})
	if err != nil {
		f.Close()
		return nil, err
	}
	w.stream = stream
	w.buf = bufio.NewWriterSize(stream, 32<<10)
	return w, nil
}

func (w *Writer) Path() string { return w.path }

func (w *Writer) Append(p domain.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	frame, err := domain.Encode(p, w.scratch[:])
	if err != nil {
		return err
	}
	if _, err := w.buf.Write(frame); err != nil {
		return fmt.Errorf("append %s: %w", w.path, err)
	}
	w.records++
	return nil
}

// Flush pushes buffered frames through the compressor to the file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.stream.Flush()
}

func (w *Writer) Stats() ports.PacketLogStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.PacketLogStats{Path: w.path, Records: w.records, SizeBytes: w.onDisk}
}

// Close flushes, closes the file and writes the digest sidecar when
// enabled. Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.stream.Close(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if !w.digest {
		return nil
	}
	sum := hex.EncodeToString(w.hasher.Sum(nil))
	return os.WriteFile(w.path+DigestSuffix, []byte(sum+"  "+filepath.Base(w.path)+"\n"), 0o644)
}

type countingWriter struct {
	w    io.Writer
	hash io.Writer
	n    *int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.hash.Write(p[:n])
	*c.n += int64(n)
	return n, err
}

var _ ports.PacketLog = (*Writer)(nil)
