package shutdown

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// TerminationSignals are the signals that request shutdown.
var TerminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

// ForcedExitCode is the status used when a second request arrives.
const ForcedExitCode = 1

type watchOptions struct {
	exit    func(code int)
	signals <-chan os.Signal
	logger  *slog.Logger
}

type WatchOption func(*watchOptions)

// WithExit replaces os.Exit, mainly for tests.
func WithExit(fn func(code int)) WatchOption {
	return func(o *watchOptions) { o.exit = fn }
}

// WithSignals feeds signals from ch instead of registering OS handlers.
func WithSignals(ch <-chan os.Signal) WatchOption {
	return func(o *watchOptions) { o.signals = ch }
}

func WithLogger(l *slog.Logger) WatchOption {
	return func(o *watchOptions) { o.logger = l }
}

// Watch connects termination signals to g. The returned function stops
// watching and deregisters the handlers.
func Watch(g *Gate, opts ...WatchOption) (stop func()) {
	o := watchOptions{exit: os.Exit, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	src := o.signals
	var osCh chan os.Signal
	if src == nil {
		// buffered so a second signal is not lost while the first is handled
		osCh = make(chan os.Signal, 2)
		signal.Notify(osCh, TerminationSignals...)
		src = osCh
	}

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-quit:
				return
			case sig, ok := <-src:
				if !ok {
					return
				}
				if g.HasFired() {
					o.logger.Error("second termination request, forcing exit", "signal", sig.String())
					o.exit(ForcedExitCode)
					return
				}
				o.logger.Info("termination requested, shutting down", "signal", sig.String())
				g.Fire()
			}
		}
	}()

	return func() {
		if osCh != nil {
			signal.Stop(osCh)
		}
		close(quit)
		<-done
	}
}
