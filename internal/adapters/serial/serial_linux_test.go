//go:build linux

package serial

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestBaudFlag(t *testing.T) {
	got, err := baudFlag(115200)
	if err != nil || got != unix.B115200 {
		t.Fatalf("expected B115200, got %v err %v", got, err)
	}
	if _, err := baudFlag(12345); !errors.Is(err, ErrUnsupportedBaud) {
		t.Fatalf("expected ErrUnsupportedBaud, got %v", err)
	}
}

func TestOpenRejectsNonTerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-tty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := Open(Config{Device: path, Baud: 9600}); err == nil {
		t.Fatalf("expected termios configuration to fail on a regular file")
	}
}

func TestMakeRawClearsLineDiscipline(t *testing.T) {
	tio := &unix.Termios{Lflag: unix.ICANON | unix.ECHO, Oflag: unix.OPOST, Cflag: unix.PARENB}
	makeRaw(tio)
	if tio.Lflag&(unix.ICANON|unix.ECHO) != 0 || tio.Oflag&unix.OPOST != 0 {
		t.Fatalf("expected canonical mode and output processing off: %+v", tio)
	}
	if tio.Cflag&unix.CS8 == 0 || tio.Cflag&unix.PARENB != 0 {
		t.Fatalf("expected 8N1 character size: %+v", tio)
	}
}

func TestWriteFrameToPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	p := &Port{f: w, name: "pipe"}
	if err := p.WriteFrame([]byte("frame")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	p.Close()
	buf := make([]byte, 16)
	n, _ := r.Read(buf)
	if string(buf[:n]) != "frame" {
		t.Fatalf("expected frame bytes, got %q", buf[:n])
	}
}
