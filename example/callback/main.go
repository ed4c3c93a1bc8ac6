package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbisat/orbisat/pkg/orbisat"
)

func main() {
	flow, err := orbisat.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	off := false
	flow.Config().Console.Enabled = &off

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(p orbisat.TmPacket) error {
		fmt.Printf("%s %s\n", p.Timestamp.Time().Format(time.RFC3339Nano), orbisat.Describe(p))
		return nil
	}

	if err := flow.Run(ctx, orbisat.StreamOutCallback("stdout", callback)); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
