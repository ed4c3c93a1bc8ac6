// Package shutdown provides the process-wide cancellation gate and the
// two-stage signal escalation that drives it.
//
// The first termination signal fires the gate and every supervised task
// winds down at its next suspension point. A further signal while the gate
// is already fired skips the cooperative path and exits with status 1, so
// an operator can always bound shutdown latency.
package shutdown

import (
	"context"
	"sync"
	"sync/atomic"
)

// Gate is a one-shot cancellation flag shared by every task. It is passed
// by pointer at construction time; tasks only observe it.
type Gate struct {
	fired atomic.Bool
	once  sync.Once
	done  chan struct{}
}

func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Fire sets the gate. Calls after the first are no-ops.
func (g *Gate) Fire() {
	g.once.Do(func() {
		g.fired.Store(true)
		close(g.done)
	})
}

func (g *Gate) HasFired() bool { return g.fired.Load() }

// Done is closed when the gate fires.
func (g *Gate) Done() <-chan struct{} { return g.done }

// Wait blocks until the gate fires or ctx ends.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context derives a context that is cancelled when the gate fires.
func (g *Gate) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-g.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
