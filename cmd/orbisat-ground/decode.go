package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/orbisat/orbisat/internal/adapters/logstore"
	"github.com/orbisat/orbisat/internal/app/pipeline"
	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

func decodeCommand(args []string) error {
	fs := pflag.NewFlagSet("decode", pflag.ContinueOnError)
	var sf sourceFlags
	sf.addFlags(fs)
	device := fs.String("only", "", "print only packets from this device (e.g. pressure, gps)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var filter domain.DeviceID
	if *device != "" {
		d, err := domain.ParseDeviceID(*device)
		if err != nil {
			return err
		}
		filter = d
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srcs, err := sf.open(ctx, fs.Args())
	if err != nil {
		return err
	}
	defer closeSources(srcs)

	for _, s := range srcs {
		n, err := decodeTo(ctx, os.Stdout, s.src, filter)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		if s.torn != nil && s.torn() {
			fmt.Fprintf(os.Stderr, "%s: %d packets, final frame torn\n", s.name, n)
		}
	}
	return nil
}

// decodeTo prints one line per packet read from src and returns how many
// packets were read. A zero filter prints every device.
func decodeTo(ctx context.Context, w io.Writer, src ports.Source, filter domain.DeviceID) (int, error) {
	var n int
	for {
		p, err := src.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
		tm, ok := p.(domain.TmPacket)
		if !ok || (filter != domain.DeviceUnknown && tm.Device != filter) {
			continue
		}
		fmt.Fprintf(w, "%s %-13s %s\n", tm.Timestamp.Time().Format(time.RFC3339Nano), tm.Device, pipeline.Describe(tm))
	}
}

func verifyCommand(args []string) error {
	fs := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no input files")
	}
	return verifyFiles(os.Stdout, fs.Args())
}

func verifyFiles(w io.Writer, paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := logstore.Verify(path); err != nil {
			fmt.Fprintf(w, "FAIL  %s: %v\n", path, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "OK    %s\n", path)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d logs failed verification: %w", len(errs), len(paths), errors.Join(errs...))
	}
	return nil
}
