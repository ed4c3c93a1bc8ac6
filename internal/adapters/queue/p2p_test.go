package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/orbisat/orbisat/internal/domain"
)

func tm(i int) domain.Packet {
	return domain.TmPacket{Device: domain.DeviceGPS, Timestamp: domain.Timestamp(i)}
}

func TestP2PDeliversEverythingInOrderWithSlowConsumer(t *testing.T) {
	const n = 100
	tx, rx := NewP2P(4)
	ctx := context.Background()

	go func() {
		defer tx.Close()
		for i := 0; i < n; i++ {
			if err := tx.Publish(ctx, tm(i)); err != nil {
				return
			}
		}
	}()

	for i := 0; i < n; i++ {
		if i%10 == 0 {
			time.Sleep(2 * time.Millisecond)
		}
		got, err := rx.Recv(ctx)
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if int(got.(domain.TmPacket).Timestamp) != i {
			t.Fatalf("expected packet %d, got %v", i, got)
		}
	}
	if _, err := rx.Recv(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after drain, got %v", err)
	}
}

func TestP2PBackpressureBlocksSender(t *testing.T) {
	tx, rx := NewP2P(2)
	ctx := context.Background()
	_ = tx.Publish(ctx, tm(0))
	_ = tx.Publish(ctx, tm(1))

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := tx.Publish(blocked, tm(2)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected full queue to block until deadline, got %v", err)
	}

	if _, err := rx.Recv(ctx); err != nil {
		t.Fatalf("recv: %v", err)
	}
	if err := tx.Publish(ctx, tm(2)); err != nil {
		t.Fatalf("publish after room was made: %v", err)
	}
	if tx.Len() != 2 {
		t.Fatalf("expected 2 queued, got %d", tx.Len())
	}
}

func TestP2PReceiverCloseFailsSender(t *testing.T) {
	tx, rx := NewP2P(1)
	ctx := context.Background()
	_ = tx.Publish(ctx, tm(0))

	errCh := make(chan error, 1)
	go func() { errCh <- tx.Publish(ctx, tm(1)) }()

	time.Sleep(10 * time.Millisecond)
	rx.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked publish did not observe receiver close")
	}
	if err := tx.Publish(ctx, tm(2)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed for later publish, got %v", err)
	}
}

func TestP2PRecvHonoursContext(t *testing.T) {
	_, rx := NewP2P(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rx.Recv(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
