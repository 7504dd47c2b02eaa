package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"citadel/internal/portfolio"
)

// Header is the column layout written by CSVHistory. Files with only the first five columns are
// read as well.
var Header = []string{"time", "lp_value", "hl_value", "total_value", "apr", "lp_fees", "hl_fees"}

var requiredColumns = []string{"time", "lp_value", "hl_value", "total_value"}

// localLayouts carry no zone and are read in the history's location.
var localLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// CSVHistory keeps one file per strategy under dir. Every append re-reads the file and writes it
// back in full through a temporary file and a rename.
type CSVHistory struct {
	dir string
	loc *time.Location

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCSVHistory creates a CSVHistory rooted at dir.
func NewCSVHistory(dir string) *CSVHistory {
	return &CSVHistory{
		dir:   dir,
		loc:   time.Local,
		locks: make(map[string]*sync.Mutex),
	}
}

// Path returns the file backing strategy.
func (h *CSVHistory) Path(strategy string) string {
	return filepath.Join(h.dir, strategy+".csv")
}

// Load reads every stored snapshot of strategy. A missing file is an empty history.
func (h *CSVHistory) Load(ctx context.Context, strategy string) ([]portfolio.Snapshot, error) {
	lock := h.lock(strategy)
	lock.Lock()
	defer lock.Unlock()

	return h.read(ctx, strategy)
}

// Append adds snap to the end of its strategy's file.
func (h *CSVHistory) Append(ctx context.Context, snap portfolio.Snapshot) error {
	if strings.TrimSpace(snap.Strategy) == "" {
		return ErrNoStrategy
	}

	lock := h.lock(snap.Strategy)
	lock.Lock()
	defer lock.Unlock()

	history, err := h.read(ctx, snap.Strategy)
	if err != nil {
		return err
	}
	history = append(history, snap)

	return h.write(snap.Strategy, history)
}

func (h *CSVHistory) lock(strategy string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[strategy]
	if !ok {
		l = &sync.Mutex{}
		h.locks[strategy] = l
	}
	return l
}

func (h *CSVHistory) read(ctx context.Context, strategy string) ([]portfolio.Snapshot, error) {
	file, err := os.Open(h.Path(strategy))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: open history: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read header of %s: %w", h.Path(strategy), err)
	}
	columns, err := indexColumns(header)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", h.Path(strategy), err)
	}

	var history []portfolio.Snapshot
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store: read %s: %w", h.Path(strategy), err)
		}
		snap, err := parseRecord(strategy, columns, record, h.loc)
		if err != nil {
			return nil, fmt.Errorf("store: %s line %d: %w", h.Path(strategy), line, err)
		}
		history = append(history, snap)
	}

	return history, nil
}

func (h *CSVHistory) write(strategy string, history []portfolio.Snapshot) error {
	if err := ensureDir(h.dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(h.dir, strategy+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp history: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	writer := csv.NewWriter(tmp)
	if err := writer.Write(Header); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("store: write header: %w", err)
	}
	for _, snap := range history {
		if err := writer.Write(formatRecord(snap)); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("store: write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("store: flush history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("store: sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp history: %w", err)
	}

	if err := os.Rename(tmpName, h.Path(strategy)); err != nil {
		return fmt.Errorf("store: replace history: %w", err)
	}
	return nil
}

func indexColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return columns, nil
}

func parseRecord(strategy string, columns map[string]int, record []string, loc *time.Location) (portfolio.Snapshot, error) {
	cell := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	snap := portfolio.Snapshot{Strategy: strategy}

	ts, err := parseTime(cell("time"), loc)
	if err != nil {
		return snap, err
	}
	snap.Time = ts

	fields := []struct {
		name     string
		dst      *float64
		optional bool
	}{
		{"lp_value", &snap.LPValue, false},
		{"hl_value", &snap.HLValue, false},
		{"total_value", &snap.TotalValue, false},
		{"lp_fees", &snap.LPFees, true},
		{"hl_fees", &snap.HLFees, true},
	}
	for _, f := range fields {
		raw := cell(f.name)
		if raw == "" && f.optional {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return snap, fmt.Errorf("column %s: %w", f.name, err)
		}
		*f.dst = v
	}

	if raw := cell("apr"); raw != "" && !strings.EqualFold(raw, "nan") {
		apr, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return snap, fmt.Errorf("column apr: %w", err)
		}
		snap.APR = &apr
	}

	return snap, nil
}

func formatRecord(snap portfolio.Snapshot) []string {
	apr := ""
	if snap.APR != nil {
		apr = formatFloat(*snap.APR)
	}
	return []string{
		snap.Time.UTC().Format(time.RFC3339Nano),
		formatFloat(snap.LPValue),
		formatFloat(snap.HLValue),
		formatFloat(snap.TotalValue),
		apr,
		formatFloat(snap.LPFees),
		formatFloat(snap.HLFees),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseTime(raw string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC(), nil
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}
