package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbisat/orbisat"
)

func main() {
	cfg, err := orbisat.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	consumer, packets, closePackets := orbisat.NewChannelConsumer("fanout", 32)
	defer closePackets()

	rt, err := orbisat.NewRuntime(cfg, orbisat.WithConsumer(consumer))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	// A host-side producer publishing a board temperature next to the
	// onboard instruments.
	board, err := rt.ExternalProducer(orbisat.DeviceTemperature)
	if err != nil {
		log.Fatalf("external producer: %v", err)
	}
	defer board.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go fanoutWorker("ground", packets)
	go publishBoardTemperature(ctx, board)

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, packets <-chan orbisat.TmPacket) {
	for p := range packets {
		if p.Device == orbisat.DeviceAltimeter {
			fmt.Printf("[%s] %s at %s\n", name, orbisat.Describe(p), time.Now().Format(time.RFC3339))
		}
	}
}

func publishBoardTemperature(ctx context.Context, p *orbisat.ExternalProducer) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(41.5))
		if err := p.Publish(ctx, b[:]); err != nil {
			return
		}
	}
}
