package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orbisat/orbisat/internal/domain"
	"github.com/orbisat/orbisat/internal/ports"
)

// TimescaleSink stores packets in a hypertable keyed by (device_id, ts).
type TimescaleSink struct {
	db        *sql.DB
	tableName string
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	return &TimescaleSink{db: db, tableName: table}
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// WriteBatch inserts packets idempotently; re-ingesting a log is a no-op.
func (t *TimescaleSink) WriteBatch(packets []domain.TmPacket) error {
	if len(packets) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (device_id, device, ts, payload, values) VALUES ")

	args := make([]any, 0, len(packets)*5)
	for i, p := range packets {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5))

		var vals any
		if v := domain.Values(p); v != nil {
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("marshal values: %w", err)
			}
			vals = raw
		}

		args = append(args,
			int16(p.Device),
			p.Device.String(),
			p.Timestamp.Time(),
			p.Payload.Bytes(),
			vals,
		)
	}

	b.WriteString(" ON CONFLICT (device_id, ts) DO NOTHING")

	_, err := t.db.Exec(b.String(), args...)
	return err
}

var _ ports.Sink = (*TimescaleSink)(nil)
