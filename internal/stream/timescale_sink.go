package stream

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"power-hmc-agent/internal/model"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// TimescaleSink stores counter points as one row per (host, ts, counter).
// Re-captured windows overwrite earlier values.
type TimescaleSink struct {
	db            *sql.DB
	countersTable string
	statusTable   string
}

func NewTimescaleSink(db *sql.DB, countersTable, statusTable string) (*TimescaleSink, error) {
	for _, name := range []string{countersTable, statusTable} {
		if !tableNameRe.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &TimescaleSink{db: db, countersTable: countersTable, statusTable: statusTable}, nil
}

func (t *TimescaleSink) SendHostCounters(ctx Context, hc model.HostCounters) error {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.countersTable)
	b.WriteString(" (agent_id, host_uuid, host_name, ts, counter, value) VALUES ")

	args := make([]any, 0, len(hc.Points)*6)
	for _, p := range hc.Points {
		ts := time.Unix(p.TimestampUnix, 0).UTC()
		names := make([]string, 0, len(p.Values))
		for name := range p.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if len(args) > 0 {
				b.WriteString(",")
			}
			n := len(args)
			fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6)
			args = append(args, hc.AgentID, hc.HostUUID, hc.HostName, ts, name, p.Values[name])
		}
	}
	if len(args) == 0 {
		return nil
	}
	b.WriteString(" ON CONFLICT (host_uuid, ts, counter) DO UPDATE SET value = EXCLUDED.value")

	if _, err := t.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert host counters: %w", err)
	}
	return nil
}

func (t *TimescaleSink) SendHostStatus(ctx Context, st model.HostStatus) error {
	query := "INSERT INTO " + t.statusTable +
		" (agent_id, host_uuid, checked_at, metrics_available, reason) VALUES ($1,$2,$3,$4,$5)"
	at := time.Unix(st.CheckedAtUnix, 0).UTC()
	if _, err := t.db.ExecContext(ctx, query, st.AgentID, st.HostUUID, at, st.MetricsAvailable, st.Reason); err != nil {
		return fmt.Errorf("insert host status: %w", err)
	}
	return nil
}

func (t *TimescaleSink) Close(Context) error {
	return t.db.Close()
}
