// Package supervise races long-running task bodies against the shutdown
// gate and aggregates the first failure across a set of tasks.
package supervise

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/orbisat/orbisat/internal/shutdown"
)

// Body is a task that runs until it fails or its context is cancelled.
// Every suspension point inside a body must observe ctx.
type Body func(ctx context.Context) error

// Loop runs body concurrently with observing g. If the gate fires first,
// the body's context is cancelled, Loop waits for the body to return and
// reports nil. If the body returns first, its error is reported.
func Loop(g *shutdown.Gate, name string, body Body) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- body(ctx) }()

	select {
	case <-g.Done():
		cancel()
		<-result
		return nil
	case err := <-result:
		if err == nil || g.HasFired() {
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	}
}

// Group starts supervised loops concurrently. The first task failure fires
// the shared gate so the remaining tasks wind down; Wait returns that
// first failure.
type Group struct {
	gate *shutdown.Gate
	eg   errgroup.Group

	// OnExit, when set, is called once per task after its loop returns.
	OnExit func(name string, err error)
}

func NewGroup(g *shutdown.Gate) *Group {
	return &Group{gate: g}
}

func (gr *Group) Go(name string, body Body) {
	gr.eg.Go(func() error {
		err := Loop(gr.gate, name, body)
		if gr.OnExit != nil {
			gr.OnExit(name, err)
		}
		if err != nil {
			gr.gate.Fire()
		}
		return err
	})
}

// Wait blocks until every task has returned.
func (gr *Group) Wait() error {
	return gr.eg.Wait()
}
