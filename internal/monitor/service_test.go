package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citadel/internal/config"
	"citadel/internal/portfolio"
	"citadel/internal/store"
)

func newTestService(t *testing.T) *Service {
	db, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc, err := NewService(db, nil)
	require.NoError(t, err)

	clock := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc
}

func TestNewService_RequiresStore(t *testing.T) {
	_, err := NewService(nil, nil)
	require.Error(t, err)
}

func TestRecordAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordCycle(ctx, CyclePayload{CycleID: "c1", Strategies: 1, Duration: time.Second})
	svc.RecordSnapshot(ctx, "c1", portfolio.Snapshot{Strategy: "citadel", TotalValue: 42}, true)
	svc.RecordFeeFallback(ctx, "c1", "citadel", "liquidity")
	svc.RecordError(ctx, "strategy failed", errors.New("rpc down"), map[string]interface{}{"strategy": "citadel"})

	all, err := svc.ListEvents(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, EventError, all[0].Type)
	assert.Equal(t, EventCycle, all[3].Type)
	assert.True(t, all[0].Timestamp.After(all[3].Timestamp))

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(all[0].Payload.(json.RawMessage), &payload))
	assert.Equal(t, "rpc down", payload.Error)
	assert.Equal(t, "citadel", payload.Context["strategy"])

	snapshots, err := svc.ListEvents(ctx, EventSnapshot, 10)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)

	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(snapshots[0].Payload.(json.RawMessage), &snap))
	assert.Equal(t, 42.0, snap.Snapshot.TotalValue)
	assert.True(t, snap.InRange)

	limited, err := svc.ListEvents(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestHandler(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	svc.RecordFeeFallback(ctx, "c1", "citadel", "hyperliquid")
	svc.RecordCycle(ctx, CyclePayload{CycleID: "c1"})

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?type=FEE_FALLBACK&limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var events []struct {
		Type    EventType          `json:"type"`
		Payload FeeFallbackPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, EventFeeFallback, events[0].Type)
	assert.Equal(t, "hyperliquid", events[0].Payload.Source)

	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?type=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
