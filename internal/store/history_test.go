package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citadel/internal/config"
	"citadel/internal/portfolio"
)

var base = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func sample(strategy string, i int) portfolio.Snapshot {
	snap := portfolio.Snapshot{
		Time:       base.Add(time.Duration(i) * time.Minute),
		Strategy:   strategy,
		LPValue:    2500.125 + float64(i),
		LPFees:     1.5,
		HLValue:    1000.25,
		HLFees:     0.75,
		TotalValue: 3500.375 + float64(i),
	}
	if i > 0 {
		apr := 12.5 * float64(i)
		snap.APR = &apr
	}
	return snap
}

func memoryStore(t *testing.T) *Store {
	db, err := NewSQLite(config.DatabaseConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func backends(t *testing.T) map[string]History {
	sqliteHistory, err := NewSQLiteHistory(memoryStore(t))
	require.NoError(t, err)
	return map[string]History{
		"csv":    NewCSVHistory(t.TempDir()),
		"sqlite": sqliteHistory,
	}
}

func TestHistory_AppendAndLoad(t *testing.T) {
	for name, history := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := history.Load(ctx, "citadel")
			require.NoError(t, err)
			assert.Empty(t, empty)

			for i := 0; i < 3; i++ {
				require.NoError(t, history.Append(ctx, sample("citadel", i)))
			}
			require.NoError(t, history.Append(ctx, sample("other", 0)))

			loaded, err := history.Load(ctx, "citadel")
			require.NoError(t, err)
			require.Len(t, loaded, 3)
			for i, snap := range loaded {
				assert.Equal(t, sample("citadel", i), snap)
			}
			assert.Nil(t, loaded[0].APR)

			other, err := history.Load(ctx, "other")
			require.NoError(t, err)
			assert.Len(t, other, 1)
		})
	}
}

func TestHistory_RejectsUnnamedSnapshot(t *testing.T) {
	for name, history := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := history.Append(context.Background(), sample("", 0))
			require.ErrorIs(t, err, ErrNoStrategy)
		})
	}
}

func TestCSVHistory_FileLayout(t *testing.T) {
	dir := t.TempDir()
	history := NewCSVHistory(dir)
	ctx := context.Background()

	require.NoError(t, history.Append(ctx, sample("citadel", 0)))
	require.NoError(t, history.Append(ctx, sample("citadel", 1)))

	raw, err := os.ReadFile(filepath.Join(dir, "citadel.csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"time,lp_value,hl_value,total_value,apr,lp_fees,hl_fees\n"+
			"2025-05-01T12:00:00Z,2500.125,1000.25,3500.375,,1.5,0.75\n"+
			"2025-05-01T12:01:00Z,2501.125,1000.25,3501.375,12.5,1.5,0.75\n",
		string(raw))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestCSVHistory_ReadsLegacyFiles(t *testing.T) {
	dir := t.TempDir()
	legacy := "time,lp_value,hl_value,total_value,apr\n" +
		"2025-04-30 08:15:00.123456,2400.5,990,3390.5,\n" +
		"2025-04-30 08:16:00.654321,2401,990,3391,8.25\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "citadel.csv"), []byte(legacy), 0o644))

	history := NewCSVHistory(dir)
	history.loc = time.FixedZone("CEST", 2*60*60)
	loaded, err := history.Load(context.Background(), "citadel")
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// zone-less rows are local wall clock times
	assert.Equal(t, time.Date(2025, 4, 30, 6, 15, 0, 123456000, time.UTC), loaded[0].Time)
	assert.Nil(t, loaded[0].APR)
	require.NotNil(t, loaded[1].APR)
	assert.Equal(t, 8.25, *loaded[1].APR)
	assert.Zero(t, loaded[1].LPFees)

	// appending upgrades the file to the full layout
	require.NoError(t, history.Append(context.Background(), sample("citadel", 5)))
	loaded, err = history.Load(context.Background(), "citadel")
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
	assert.Equal(t, 3390.5, loaded[0].TotalValue)
}

func TestCSVHistory_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "citadel.csv"), []byte("time,lp_value\n"), 0o644))

	_, err := NewCSVHistory(dir).Load(context.Background(), "citadel")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total_value")
}

func TestNewHistory(t *testing.T) {
	h, err := NewHistory(config.StorageConfig{Driver: "csv", Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &CSVHistory{}, h)

	_, err = NewHistory(config.StorageConfig{Driver: "sqlite"}, nil)
	require.Error(t, err)

	h, err = NewHistory(config.StorageConfig{Driver: "sqlite"}, memoryStore(t))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteHistory{}, h)

	_, err = NewHistory(config.StorageConfig{Driver: "parquet"}, nil)
	require.Error(t, err)
}

func TestTail(t *testing.T) {
	history := []portfolio.Snapshot{sample("a", 0), sample("a", 1), sample("a", 2)}
	assert.Len(t, Tail(history, 2), 2)
	assert.Equal(t, history[2], Tail(history, 2)[1])
	assert.Len(t, Tail(history, 0), 3)
	assert.Len(t, Tail(history, 10), 3)
}
