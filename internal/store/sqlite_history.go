package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"citadel/internal/portfolio"
)

// SQLiteHistory stores snapshots in the shared database.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory creates the snapshot table if needed.
func NewSQLiteHistory(store *Store) (*SQLiteHistory, error) {
	h := &SQLiteHistory{db: store.DB()}
	if err := h.initSchema(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *SQLiteHistory) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy TEXT NOT NULL,
	captured_at TEXT NOT NULL,
	lp_value REAL NOT NULL,
	lp_fees REAL NOT NULL DEFAULT 0,
	hl_value REAL NOT NULL,
	hl_fees REAL NOT NULL DEFAULT 0,
	total_value REAL NOT NULL,
	apr REAL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_strategy ON snapshots(strategy, id);
`
	if _, err := h.db.Exec(stmt); err != nil {
		return fmt.Errorf("store: init snapshots table: %w", err)
	}
	return nil
}

// Load returns the snapshots of strategy in insertion order.
func (h *SQLiteHistory) Load(ctx context.Context, strategy string) ([]portfolio.Snapshot, error) {
	rows, err := h.db.QueryContext(ctx, `
SELECT captured_at, lp_value, lp_fees, hl_value, hl_fees, total_value, apr
FROM snapshots WHERE strategy = ? ORDER BY id ASC`, strategy)
	if err != nil {
		return nil, fmt.Errorf("store: query snapshots: %w", err)
	}
	defer rows.Close()

	var history []portfolio.Snapshot
	for rows.Next() {
		var (
			captured string
			apr      sql.NullFloat64
			snap     = portfolio.Snapshot{Strategy: strategy}
		)
		if err := rows.Scan(&captured, &snap.LPValue, &snap.LPFees, &snap.HLValue, &snap.HLFees, &snap.TotalValue, &apr); err != nil {
			return nil, fmt.Errorf("store: scan snapshot: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, captured)
		if err != nil {
			return nil, fmt.Errorf("store: snapshot time %q: %w", captured, err)
		}
		snap.Time = ts.UTC()
		if apr.Valid {
			v := apr.Float64
			snap.APR = &v
		}
		history = append(history, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read snapshots: %w", err)
	}

	return history, nil
}

// Append inserts snap.
func (h *SQLiteHistory) Append(ctx context.Context, snap portfolio.Snapshot) error {
	if strings.TrimSpace(snap.Strategy) == "" {
		return ErrNoStrategy
	}

	var apr sql.NullFloat64
	if snap.APR != nil {
		apr = sql.NullFloat64{Float64: *snap.APR, Valid: true}
	}

	_, err := h.db.ExecContext(ctx, `
INSERT INTO snapshots (strategy, captured_at, lp_value, lp_fees, hl_value, hl_fees, total_value, apr)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Strategy, snap.Time.UTC().Format(time.RFC3339Nano),
		snap.LPValue, snap.LPFees, snap.HLValue, snap.HLFees, snap.TotalValue, apr,
	)
	if err != nil {
		return fmt.Errorf("store: insert snapshot: %w", err)
	}
	return nil
}
