package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
	"github.com/orbisat/orbisat/internal/supervise"
)

// ColorMode is "auto", "always" or "never".
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

var deviceColors = map[domain.DeviceID]lipgloss.Color{
	domain.DeviceSystem:        "8",
	domain.DevicePressure:      "33",
	domain.DeviceTemperature:   "208",
	domain.DeviceHumidity:      "37",
	domain.DeviceGPS:           "141",
	domain.DeviceAccelerometer: "178",
	domain.DeviceAltimeter:     "42",
}

// Console renders packets as one human-readable line each.
type Console struct {
	w      io.Writer
	device map[domain.DeviceID]lipgloss.Style
	dim    lipgloss.Style
}

func NewConsole(w io.Writer, mode ColorMode) *Console {
	r := lipgloss.NewRenderer(w)
	switch mode {
	case ColorAlways:
		r.SetColorProfile(termenv.ANSI256)
	case ColorNever:
		r.SetColorProfile(termenv.Ascii)
	default:
		if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
			r.SetColorProfile(termenv.Ascii)
		}
	}
	c := &Console{
		w:      w,
		device: make(map[domain.DeviceID]lipgloss.Style, len(deviceColors)),
		dim:    r.NewStyle().Faint(true),
	}
	for dev, color := range deviceColors {
		c.device[dev] = r.NewStyle().Foreground(color).Bold(true)
	}
	return c
}

func (c *Console) Print(p domain.Packet) error {
	tm, ok := p.(domain.TmPacket)
	if !ok {
		_, err := fmt.Fprintf(c.w, "%v\n", p)
		return err
	}
	name := fmt.Sprintf("%-13s", tm.Device)
	if st, ok := c.device[tm.Device]; ok {
		name = st.Render(name)
	}
	_, err := fmt.Fprintf(c.w, "%s %s %s\n",
		c.dim.Render(tm.Timestamp.Time().Format("15:04:05.000")), name, Describe(tm))
	return err
}

// Describe decodes a packet payload into readable units, falling back to
// hex for layouts it does not know.
func Describe(tm domain.TmPacket) string {
	b := tm.Payload.Bytes()
	switch tm.Device {
	case domain.DevicePressure, domain.DeviceTemperature, domain.DeviceHumidity:
		v, err := domain.F32(b, 0)
		if err != nil || len(b) != 4 {
			break
		}
		unit := map[domain.DeviceID]string{
			domain.DevicePressure:    "hPa",
			domain.DeviceTemperature: "°C",
			domain.DeviceHumidity:    "%RH",
		}[tm.Device]
		return fmt.Sprintf("%.2f %s", v, unit)
	case domain.DeviceAccelerometer:
		if a, err := domain.ParseAcceleration(b); err == nil {
			return fmt.Sprintf("x=%+.3f y=%+.3f z=%+.3f m/s²", a.X, a.Y, a.Z)
		}
	case domain.DeviceGPS:
		if pos, err := domain.ParsePosition(b); err == nil {
			if !pos.HasFix() {
				return "no fix"
			}
			alt := "?"
			if !math.IsNaN(float64(pos.AltitudeM)) {
				alt = fmt.Sprintf("%.1fm", pos.AltitudeM)
			}
			return fmt.Sprintf("lat=%.6f lon=%.6f alt=%s", pos.Latitude, pos.Longitude, alt)
		}
	case domain.DeviceAltimeter:
		if a, err := domain.ParseAltitude(b); err == nil {
			return fmt.Sprintf("alt=%.1fm v=%+.2fm/s", a.AltitudeM, a.SpeedMPS)
		}
	case domain.DeviceSystem:
		if h, err := domain.ParseHeartbeat(b); err == nil {
			boot := fmt.Sprintf("%x", h.BootID)
			if id, err := uuid.FromBytes(h.BootID); err == nil {
				boot = id.String()
			}
			return fmt.Sprintf("heartbeat seq=%d uptime=%dms boot=%s", h.Seq, h.UptimeMS, boot)
		}
	}
	return strings.TrimSpace(fmt.Sprintf("%x", b))
}

// ConsoleReporter prints every packet seen on src.
func ConsoleReporter(src ports.Source, c *Console, deps Deps) supervise.Body {
	deps = deps.withDefaults()
	return func(ctx context.Context) error {
		return consume(ctx, "console", src, deps.Obs, func(_ context.Context, p domain.Packet) error {
			return c.Print(p)
		})
	}
}
