package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"citadel/internal/portfolio"
	"citadel/internal/store"
)

// Service persists monitor events.
type Service struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the events table on store.
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("monitor: store must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
		now:    time.Now,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: init schema: %w", err)
	}
	return nil
}

// Record stores one event.
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: encode payload: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: insert event: %w", err)
	}

	return nil
}

// RecordCycle stores the outcome of a polling cycle.
func (s *Service) RecordCycle(ctx context.Context, payload CyclePayload) {
	s.record(ctx, EventCycle, payload)
}

// RecordSnapshot stores a snapshot event.
func (s *Service) RecordSnapshot(ctx context.Context, cycleID string, snap portfolio.Snapshot, inRange bool) {
	s.record(ctx, EventSnapshot, SnapshotPayload{CycleID: cycleID, Snapshot: snap, InRange: inRange})
}

// RecordFeeFallback stores that a fee source reported zero.
func (s *Service) RecordFeeFallback(ctx context.Context, cycleID, strategy, source string) {
	s.record(ctx, EventFeeFallback, FeeFallbackPayload{CycleID: cycleID, Strategy: strategy, Source: source})
}

// RecordError stores a failure with optional context.
func (s *Service) RecordError(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	payload := ErrorPayload{Message: msg, Context: fields}
	if err != nil {
		payload.Error = err.Error()
	}
	s.record(ctx, EventError, payload)
}

func (s *Service) record(ctx context.Context, typ EventType, payload interface{}) {
	if err := s.Record(ctx, Event{Type: typ, Payload: payload}); err != nil {
		s.logger.Warn("failed to record monitor event", zap.String("type", string(typ)), zap.Error(err))
	}
}

// ListEvents returns the most recent events, newest first. An empty eventType matches all.
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: query events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var typ, payload, created string
		if err := rows.Scan(&typ, &payload, &created); err != nil {
			return nil, fmt.Errorf("monitor: scan event: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("monitor: event time %q: %w", created, err)
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts.UTC(),
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: read events: %w", err)
	}

	return events, nil
}
