package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citadel/internal/config"
	"citadel/internal/daily"
	"citadel/internal/insight"
	"citadel/internal/liquidity"
	"citadel/internal/portfolio"
	"citadel/internal/position"
)

type memoryHistory map[string][]portfolio.Snapshot

func (m memoryHistory) Load(_ context.Context, strategy string) ([]portfolio.Snapshot, error) {
	return m[strategy], nil
}

type reports map[string]portfolio.Report

func (r reports) Latest(strategy string) (portfolio.Report, bool) {
	rep, ok := r[strategy]
	return rep, ok
}

type fixedDaily struct{ status daily.Status }

func (f fixedDaily) Latest(_ context.Context, strategy string) (daily.Status, bool, error) {
	if strategy != f.status.Strategy {
		return daily.Status{}, false, nil
	}
	return f.status, true, nil
}

type insights map[string]insight.Insight

func (i insights) Latest(strategy string) (insight.Insight, bool) {
	in, ok := i[strategy]
	return in, ok
}

func history() []portfolio.Snapshot {
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	snaps := []portfolio.Snapshot{
		{Time: start, Strategy: "citadel", LPValue: 2500, LPFees: 3, HLValue: 1000, TotalValue: 3500},
	}
	snaps = append(snaps, portfolio.Next(snaps, portfolio.Snapshot{
		Time: start.Add(time.Hour), Strategy: "citadel", LPValue: 2510.5, LPFees: 4.25, HLValue: 995, HLFees: 1.5, TotalValue: 3505.5,
	}))
	return snaps
}

func newTestServer(t *testing.T) (*Server, memoryHistory) {
	t.Helper()
	h := history()
	store := memoryHistory{"citadel": h, "hedge": nil}
	latest := h[len(h)-1]

	srv := NewServer(config.DashboardConfig{Addr: "127.0.0.1:0", Title: "Citadel", RefreshInterval: time.Minute, HistoryLimit: 100}, Deps{
		Strategies: []string{"citadel", "hedge"},
		History:    store,
		Reports: reports{"citadel": {
			Snapshot: latest,
			Liquidity: liquidity.Valuation{
				VolatileSymbol: "WETH", StableSymbol: "USDC",
				VolatileAmount: 0.5, StableAmount: 1006.5, VolatilePrice: 3000, VolatileUSD: 1500,
				InRange: true, FeesEstimated: true,
			},
			Account: position.Account{FillsKnown: true},
		}},
		Daily: fixedDaily{status: daily.Status{
			Strategy: "citadel", Day: daily.Day(time.Now()), StartEquity: 3500, CurrentEquity: 3505.5,
		}},
		Insights: insights{"citadel": {Strategy: "citadel", HTML: "<p><strong>steady</strong></p>", GeneratedAt: time.Now()}},
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("metrics")) }),
		Events:   http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("[]")) }),
	}, nil)
	return srv, store
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$1,234.57", USD(1234.567))
	assert.Equal(t, "$0.00", USD(0))
	assert.Equal(t, "-$12.50", USD(-12.5))
	assert.Equal(t, "$3.5k", Compact(3500))
	assert.Equal(t, "n/a", Percent(nil))
	v := 12.345
	assert.Equal(t, "12.35%", Percent(&v))
	assert.Equal(t, "+0.16%", SignedPercent(0.157))
	assert.Equal(t, "0.500000 ETH", Amount(0.5, "WETH", 6))
	assert.Equal(t, "1006.50 USDC", Amount(1006.5, "USDC", 2))
}

func TestPage(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, `<meta http-equiv="refresh" content="60">`)
	assert.Contains(t, body, "ETH in LP")
	assert.Contains(t, body, "0.500000 ETH")
	assert.Contains(t, body, "1006.50 USDC")
	assert.Contains(t, body, "$2,510.50")
	assert.Contains(t, body, "$4.25")
	assert.Contains(t, body, "$3,505.50")
	assert.Contains(t, body, "in range")
	assert.Contains(t, body, "Today")
	assert.Contains(t, body, "&#43;0.16%")
	assert.Contains(t, body, "<strong>steady</strong>")
	assert.Contains(t, body, `"labels":["2025-05-01 12:00","2025-05-01 13:00"]`)
}

func TestPage_StoredSnapshotOnly(t *testing.T) {
	srv, store := newTestServer(t)
	snaps := store["citadel"]
	store["citadel"] = append(snaps, portfolio.Next(snaps, portfolio.Snapshot{
		Time: snaps[1].Time.Add(time.Hour), Strategy: "citadel", LPValue: 2520, HLValue: 990, TotalValue: 3510,
	}))

	body := get(t, srv, "/?strategy=citadel").Body.String()
	assert.NotContains(t, body, "ETH in LP")
	assert.Contains(t, body, "$3,510.00")
}

func TestPage_EmptyAndUnknown(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/?strategy=hedge")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No snapshots stored for hedge yet.")

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/?strategy=nope").Code)
}

func TestAPI(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/strategies")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var strategies []strategyView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &strategies))
	require.Len(t, strategies, 2)
	require.NotNil(t, strategies[0].Latest)
	assert.Equal(t, 3505.5, strategies[0].Latest.TotalValue)
	assert.Nil(t, strategies[1].Latest)

	rec = get(t, srv, "/api/snapshots/citadel?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var snaps []portfolio.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	require.Len(t, snaps, 1)
	require.NotNil(t, snaps[0].APR)

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/snapshots/citadel?limit=x").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/snapshots/nope").Code)

	rec = get(t, srv, "/api/summary/citadel")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.EqualValues(t, 2, summary["count"])
	assert.Contains(t, summary, "today")
	assert.Contains(t, summary, "insight")
}

func TestAuxiliaryRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, "ok\n", get(t, srv, "/healthz").Body.String())
	assert.Equal(t, "metrics", get(t, srv, "/metrics").Body.String())
	assert.Equal(t, "[]", get(t, srv, "/events").Body.String())
}

func TestHubPublish(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	require.Eventually(t, func() bool { return srv.Hub().Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	snap := history()[1]
	srv.Hub().Publish(portfolio.Report{Snapshot: snap, Liquidity: liquidity.Valuation{InRange: true}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var update Update
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "snapshot", update.Type)
	assert.Equal(t, "citadel", update.Strategy)
	assert.True(t, update.InRange)
	assert.Equal(t, 3505.5, update.Snapshot.TotalValue)

	srv.Hub().Close()
	assert.Equal(t, 0, srv.Hub().Subscribers())
}

func TestHubRefusesSubscribersAfterClose(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	srv.Hub().Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if conn != nil {
		conn.Close()
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 0, srv.Hub().Subscribers())
}

func TestStart(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, srv.Start(ctx))
}
