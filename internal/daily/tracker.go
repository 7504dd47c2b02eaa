// Package daily tracks how each strategy's total value moves within a UTC day.
package daily

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"citadel/internal/store"
)

const dayLayout = "2006-01-02"

// Status is the state of one strategy on one day.
type Status struct {
	Strategy      string    `json:"strategy"`
	Day           string    `json:"day"`
	StartEquity   float64   `json:"start_equity"`
	CurrentEquity float64   `json:"current_equity"`
	Low           float64   `json:"low"`
	High          float64   `json:"high"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Change is the move since the first reading of the day.
func (s Status) Change() float64 {
	return s.CurrentEquity - s.StartEquity
}

// ChangePercent is Change relative to the start of the day, in percent.
func (s Status) ChangePercent() float64 {
	if s.StartEquity <= 0 {
		return 0
	}
	return s.Change() / s.StartEquity * 100
}

// Tracker stores day statuses in SQLite.
type Tracker struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTracker creates the day table on store.
func NewTracker(store *store.Store, logger *zap.Logger) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("daily: store must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracker{db: store.DB(), logger: logger}
	if err := t.initSchema(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS daily_equity (
	strategy TEXT NOT NULL,
	day TEXT NOT NULL,
	start_equity REAL NOT NULL,
	current_equity REAL NOT NULL,
	low_equity REAL NOT NULL,
	high_equity REAL NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (strategy, day)
);`
	if _, err := t.db.Exec(stmt); err != nil {
		return fmt.Errorf("daily: init schema: %w", err)
	}
	return nil
}

// Update folds a new reading into the strategy's day and returns the resulting status. The first
// reading of a day becomes its start.
func (t *Tracker) Update(ctx context.Context, strategy string, ts time.Time, equity float64) (status Status, err error) {
	day := Day(ts)
	updated := ts.UTC()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return status, fmt.Errorf("daily: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	status = Status{Strategy: strategy, Day: day, CurrentEquity: equity, UpdatedAt: updated}

	row := tx.QueryRowContext(ctx,
		`SELECT start_equity, low_equity, high_equity FROM daily_equity WHERE strategy = ? AND day = ?`,
		strategy, day)
	switch scanErr := row.Scan(&status.StartEquity, &status.Low, &status.High); {
	case scanErr == nil:
		status.Low = min(status.Low, equity)
		status.High = max(status.High, equity)
		if _, err = tx.ExecContext(ctx,
			`UPDATE daily_equity SET current_equity = ?, low_equity = ?, high_equity = ?, updated_at = ?
			 WHERE strategy = ? AND day = ?`,
			equity, status.Low, status.High, updated.Format(time.RFC3339Nano), strategy, day,
		); err != nil {
			return status, fmt.Errorf("daily: update %s/%s: %w", strategy, day, err)
		}
	case errors.Is(scanErr, sql.ErrNoRows):
		status.StartEquity, status.Low, status.High = equity, equity, equity
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO daily_equity (strategy, day, start_equity, current_equity, low_equity, high_equity, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			strategy, day, equity, equity, equity, equity, updated.Format(time.RFC3339Nano),
		); err != nil {
			return status, fmt.Errorf("daily: open %s/%s: %w", strategy, day, err)
		}
		t.logger.Info("opened new day", zap.String("strategy", strategy), zap.String("day", day), zap.Float64("equity", equity))
	default:
		err = fmt.Errorf("daily: read %s/%s: %w", strategy, day, scanErr)
		return status, err
	}

	if err = tx.Commit(); err != nil {
		return status, fmt.Errorf("daily: commit: %w", err)
	}
	return status, nil
}

// Latest returns the most recent day of strategy. ok is false when nothing was recorded yet.
func (t *Tracker) Latest(ctx context.Context, strategy string) (status Status, ok bool, err error) {
	var updated string
	row := t.db.QueryRowContext(ctx,
		`SELECT day, start_equity, current_equity, low_equity, high_equity, updated_at
		 FROM daily_equity WHERE strategy = ? ORDER BY day DESC LIMIT 1`, strategy)
	err = row.Scan(&status.Day, &status.StartEquity, &status.CurrentEquity, &status.Low, &status.High, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, fmt.Errorf("daily: latest %s: %w", strategy, err)
	}

	status.Strategy = strategy
	if ts, parseErr := time.Parse(time.RFC3339Nano, updated); parseErr == nil {
		status.UpdatedAt = ts.UTC()
	}
	return status, true, nil
}

// Day returns the UTC calendar day of ts.
func Day(ts time.Time) string {
	return ts.UTC().Format(dayLayout)
}
