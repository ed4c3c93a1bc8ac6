package opcua

import (
	"context"
	"errors"
	"testing"

	"github.com/gopcua/opcua/ua"

	"github.com/orbisat/orbisat/internal/domain"
)

type stubReader struct {
	resp *ua.ReadResponse
	err  error
	reqs int
}

func (s *stubReader) Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error) {
	s.reqs++
	return s.resp, s.err
}

func newStubbed(t *testing.T, r valueReader, nodes ...string) *Driver {
	t.Helper()
	d, err := NewDriver("bench-env", Config{Endpoint: "opc.tcp://bench:4840", Nodes: nodes})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	d.reader = r
	return d
}

func TestDriverEncodesNodesInOrder(t *testing.T) {
	stub := &stubReader{resp: &ua.ReadResponse{Results: []*ua.DataValue{
		{Status: ua.StatusOK, Value: ua.MustVariant(float64(1013.25))},
		{Status: ua.StatusOK, Value: ua.MustVariant(int32(21))},
		{Status: ua.StatusOK, Value: ua.MustVariant(float32(40.5))},
	}}}
	d := newStubbed(t, stub, "ns=2;s=Pressure", "ns=2;s=Temperature", "ns=2;s=Humidity")

	b, err := d.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := domain.ParseEnvironment(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env != (domain.Environment{PressureHPa: 1013.25, TemperatureC: 21, HumidityPct: 40.5}) {
		t.Fatalf("unexpected reading %+v", env)
	}
	if stub.reqs != 1 {
		t.Fatalf("expected one read request, got %d", stub.reqs)
	}
}

func TestDriverBadStatusFails(t *testing.T) {
	stub := &stubReader{resp: &ua.ReadResponse{Results: []*ua.DataValue{
		{Status: ua.StatusBadNodeIDUnknown},
	}}}
	d := newStubbed(t, stub, "ns=2;s=Missing")
	if _, err := d.Read(context.Background()); err == nil {
		t.Fatalf("expected bad status to fail the read")
	}
}

func TestDriverTransportError(t *testing.T) {
	d := newStubbed(t, &stubReader{err: errors.New("secure channel closed")}, "ns=2;s=X")
	if _, err := d.Read(context.Background()); err == nil {
		t.Fatalf("expected transport error to surface")
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{Endpoint: "opc.tcp://bench:4840"}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing nodes to fail validation")
	}
	cfg.Nodes = []string{"not a node id;;"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected malformed node id to fail validation")
	}
}

func TestVariantToFloat(t *testing.T) {
	if v, ok := variantToFloat(ua.MustVariant(uint16(7))); !ok || v != 7 {
		t.Fatalf("expected 7, got %v %v", v, ok)
	}
	if _, ok := variantToFloat(ua.MustVariant("text")); ok {
		t.Fatalf("expected string variant to be rejected")
	}
	if _, ok := variantToFloat(nil); ok {
		t.Fatalf("expected nil variant to be rejected")
	}
}
