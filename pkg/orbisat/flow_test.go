package orbisat

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/orbisat/orbisat/internal/adapters/instrument/sim"
)

func TestConfFromConfigAndStreamBuilder(t *testing.T) {
	cfg := testConfig(t)

	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if flow.Config() != cfg {
		t.Fatalf("expected Config to be returned verbatim")
	}

	log := &memLog{}
	tr := &memTransport{}
	rt, err := flow.
		StreamIN(
			StreamInDriver(RoleEnvironment, sim.NewEnvironment()),
			StreamInObservability(&recordingObs{}),
		).
		StreamOUT(
			StreamOutPacketLog(log),
			StreamOutTransport(tr),
			StreamOutCallback("noop", func(TmPacket) error { return nil }),
		)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	if rt.log != log {
		t.Fatalf("expected custom packet log to be wired")
	}
	if rt.uplinkTx == nil {
		t.Fatalf("expected a transport override to enable the uplink")
	}
	if _, ok := rt.obs.(*recordingObs); !ok {
		t.Fatalf("expected custom observability, got %T", rt.obs)
	}
	names := make(map[string]bool)
	for _, tk := range rt.tasks {
		names[tk.name] = true
	}
	for _, want := range []string{"log-writer", "consumer-noop", "uplink-forwarder", "uplink-transmitter", "sensor-poller", "heartbeat", "altitude-monitor"} {
		if !names[want] {
			t.Fatalf("expected task %q, have %v", want, names)
		}
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestConfLoadsYAMLAndRuns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orbisat.yaml")
	raw := "log:\n  dir: " + dir + "\nconsole:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flow, err := Conf(path, WithFlowOptions(WithObservability(&recordingObs{})))
	if err != nil {
		t.Fatalf("Conf: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := flow.Run(ctx); err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
}
