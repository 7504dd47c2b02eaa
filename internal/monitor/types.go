package monitor

import (
	"time"

	"citadel/internal/portfolio"
)

// EventType names a monitor event.
type EventType string

const (
	EventCycle       EventType = "cycle"
	EventSnapshot    EventType = "snapshot"
	EventFeeFallback EventType = "fee_fallback"
	EventError       EventType = "error"
)

// ParseEventType accepts a known event type or the empty string (all types).
func ParseEventType(s string) (EventType, bool) {
	switch t := EventType(s); t {
	case "", EventCycle, EventSnapshot, EventFeeFallback, EventError:
		return t, true
	}
	return "", false
}

// Event is one stored monitor record.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CyclePayload summarizes one polling cycle.
type CyclePayload struct {
	CycleID    string        `json:"cycle_id"`
	Strategies int           `json:"strategies"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// SnapshotPayload records a stored snapshot.
type SnapshotPayload struct {
	CycleID  string             `json:"cycle_id"`
	Snapshot portfolio.Snapshot `json:"snapshot"`
	InRange  bool               `json:"in_range"`
}

// FeeFallbackPayload records that a fee source was unavailable and zero was reported.
type FeeFallbackPayload struct {
	CycleID  string `json:"cycle_id"`
	Strategy string `json:"strategy"`
	// Source is "liquidity" for the collect simulation or "hyperliquid" for the fill history.
	Source string `json:"source"`
}

// ErrorPayload records a failure.
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
