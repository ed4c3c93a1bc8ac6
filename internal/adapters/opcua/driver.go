package opcua

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/orbisat/orbisat/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session
// against a hardware-in-the-loop bench. Each Read returns the listed nodes
// in order, every value as a little-endian float32.
type Config struct {
	Endpoint        string        `yaml:"endpoint"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	ApplicationName string        `yaml:"application_name"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	Nodes           []string      `yaml:"nodes"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "orbisat bench"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	for _, n := range c.Nodes {
		if _, err := ua.ParseNodeID(n); err != nil {
			return fmt.Errorf("node %q: %w", n, err)
		}
	}
	return nil
}

type valueReader interface {
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
}

// Driver polls a fixed set of OPC UA nodes, one Read request per call.
type Driver struct {
	cfg   Config
	name  string
	nodes []*ua.ReadValueID

	mu     sync.Mutex
	client *opcua.Client
	reader valueReader
}

func NewDriver(name string, cfg Config) (*Driver, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nodes := make([]*ua.ReadValueID, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		id, _ := ua.ParseNodeID(n)
		nodes[i] = &ua.ReadValueID{NodeID: id, AttributeID: ua.AttributeIDValue}
	}
	return &Driver{cfg: cfg, name: name, nodes: nodes}, nil
}

func (d *Driver) Name() string { return d.name }

// Read connects on first use. Any failure is returned as is; the owning
// poller treats it as fatal.
func (d *Driver) Read(ctx context.Context) ([]byte, error) {
	r, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ReadTimeout)
	defer cancel()

	resp, err := r.Read(ctx, &ua.ReadRequest{
		MaxAge:             0,
		NodesToRead:        d.nodes,
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	})
	if err != nil {
		return nil, fmt.Errorf("opcua read: %w", err)
	}
	if len(resp.Results) != len(d.nodes) {
		return nil, fmt.Errorf("opcua read: %d results for %d nodes", len(resp.Results), len(d.nodes))
	}

	out := make([]byte, 4*len(d.nodes))
	for i, res := range resp.Results {
		if res.Status != ua.StatusOK {
			return nil, fmt.Errorf("opcua node %s: %s", d.cfg.Nodes[i], res.Status)
		}
		v, ok := variantToFloat(res.Value)
		if !ok {
			return nil, fmt.Errorf("opcua node %s: unsupported type %T", d.cfg.Nodes[i], res.Value.Value())
		}
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out, nil
}

func (d *Driver) connect(ctx context.Context) (valueReader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reader != nil {
		return d.reader, nil
	}
	client, err := opcua.NewClient(d.cfg.Endpoint, d.buildClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}
	d.client = client
	d.reader = client
	return client, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	client := d.client
	d.client, d.reader = nil, nil
	d.mu.Unlock()
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (d *Driver) buildClientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(d.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(d.cfg.SecurityPolicy)),
		opcua.ApplicationName(d.cfg.ApplicationName),
	}
	if d.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(d.cfg.Username, d.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.Driver = (*Driver)(nil)
