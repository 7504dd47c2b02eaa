package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"citadel/internal/config"
	"citadel/internal/portfolio"
)

// ErrNoStrategy is returned when a snapshot names no strategy.
var ErrNoStrategy = errors.New("store: snapshot has no strategy")

// History persists snapshots per strategy in capture order.
type History interface {
	Load(ctx context.Context, strategy string) ([]portfolio.Snapshot, error)
	Append(ctx context.Context, snap portfolio.Snapshot) error
}

// NewHistory returns the history backend selected by cfg. db is only used by the sqlite driver.
func NewHistory(cfg config.StorageConfig, db *Store) (History, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "csv":
		return NewCSVHistory(cfg.Dir), nil
	case "sqlite":
		if db == nil {
			return nil, errors.New("store: sqlite history needs a database")
		}
		return NewSQLiteHistory(db)
	default:
		return nil, fmt.Errorf("store: unknown history driver %q", cfg.Driver)
	}
}

// Tail returns the last n snapshots, or all of them when n <= 0.
func Tail(history []portfolio.Snapshot, n int) []portfolio.Snapshot {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
