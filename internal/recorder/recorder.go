// Package recorder persists one decision event per tick into SQLite, keyed
// for time-ordered and field-filtered queries.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sunfence/internal/core/domain"

	_ "github.com/mattn/go-sqlite3"
)

type Store interface {
	Record(ctx context.Context, ev *domain.DecisionEvent) error
	Query(ctx context.Context, filter EventFilter) ([]StoredEvent, error)
	Close() error
}

// EventFilter narrows a query. Zero values mean "no constraint".
type EventFilter struct {
	Since       time.Time
	Until       time.Time
	MinSoCPct   *float64
	ExportCosts *bool
	Limit       int
}

type StoredEvent struct {
	EventID     string    `json:"event_id"`
	Time        time.Time `json:"time"`
	Loop        uint64    `json:"loop"`
	ExportCosts bool      `json:"export_costs"`
	WantPct     float64   `json:"want_pct"`
	WantEnabled bool      `json:"want_enabled"`
	Reason      string    `json:"reason"`
	SoCPct      *float64  `json:"soc_pct,omitempty"`
	Wrote       bool      `json:"wrote"`
}

type sqliteStore struct {
	db *sql.DB
}

func NewStore(dbPath string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("recorder: init: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("recorder: open: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	// WAL keeps concurrent readers (query route) cheap
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL`); err != nil {
		return err
	}
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            event_id TEXT NOT NULL UNIQUE,
            ts_epoch_ms INTEGER NOT NULL,
            host TEXT,
            pid INTEGER,
            loop INTEGER,
            export_costs INTEGER,
            want_pct REAL,
            want_enabled INTEGER,
            reason TEXT,
            soc_pct REAL,
            p_bat_w REAL,
            p_grid_w REAL,
            p_load_w REAL,
            import_c REAL,
            feed_in_c REAL,
            wrote INTEGER,
            data_json TEXT NOT NULL
        )
    `)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_ts_epoch_ms ON events(ts_epoch_ms)`)
	return err
}

// Record inserts one event. Re-recording the same event_id is a no-op, so a
// retried tick cannot duplicate rows.
func (s *sqliteStore) Record(ctx context.Context, ev *domain.DecisionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("recorder: marshal: %w", err)
	}

	var socPct, pBatW, pGridW, pLoadW *float64
	if ev.Telemetry != nil {
		socPct = &ev.Telemetry.SoCPct
		pBatW = &ev.Telemetry.PBatW
		pGridW = &ev.Telemetry.PGridW
		pLoadW = &ev.Telemetry.PLoadW
	}
	var importC, feedInC *float64
	if ev.Price != nil {
		importC = &ev.Price.ImportCPerKWh
		feedInC = &ev.Price.FeedInCPerKWh
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO events (
            event_id, ts_epoch_ms, host, pid, loop,
            export_costs, want_pct, want_enabled, reason,
            soc_pct, p_bat_w, p_grid_w, p_load_w,
            import_c, feed_in_c, wrote, data_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		ev.EventID,
		ev.Time.UnixMilli(),
		ev.Host,
		ev.PID,
		ev.Loop,
		boolToInt(ev.Decision.ExportCosts),
		ev.Decision.WantPct,
		boolToInt(ev.Decision.WantEnabled),
		ev.Decision.Reason,
		socPct, pBatW, pGridW, pLoadW,
		importC, feedInC,
		boolToInt(ev.Wrote),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("recorder: insert: %w", err)
	}
	return nil
}

func (s *sqliteStore) Query(ctx context.Context, filter EventFilter) ([]StoredEvent, error) {
	query := `SELECT event_id, ts_epoch_ms, loop, export_costs, want_pct, want_enabled, reason, soc_pct, wrote
        FROM events WHERE 1=1`
	var args []any
	if !filter.Since.IsZero() {
		query += ` AND ts_epoch_ms >= ?`
		args = append(args, filter.Since.UnixMilli())
	}
	if !filter.Until.IsZero() {
		query += ` AND ts_epoch_ms <= ?`
		args = append(args, filter.Until.UnixMilli())
	}
	if filter.MinSoCPct != nil {
		query += ` AND soc_pct >= ?`
		args = append(args, *filter.MinSoCPct)
	}
	if filter.ExportCosts != nil {
		query += ` AND export_costs = ?`
		args = append(args, boolToInt(*filter.ExportCosts))
	}
	query += ` ORDER BY ts_epoch_ms ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recorder: query: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var tsMs int64
		var exportCosts, wantEnabled, wrote int
		var socPct sql.NullFloat64
		if err := rows.Scan(&ev.EventID, &tsMs, &ev.Loop, &exportCosts, &ev.WantPct,
			&wantEnabled, &ev.Reason, &socPct, &wrote); err != nil {
			return nil, fmt.Errorf("recorder: scan: %w", err)
		}
		ev.Time = time.UnixMilli(tsMs)
		ev.ExportCosts = exportCosts == 1
		ev.WantEnabled = wantEnabled == 1
		ev.Wrote = wrote == 1
		if socPct.Valid {
			v := socPct.Float64
			ev.SoCPct = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
