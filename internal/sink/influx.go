// Package sink mirrors snapshots into InfluxDB.
package sink

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"citadel/internal/config"
	"citadel/internal/portfolio"
)

// Measurement is the InfluxDB measurement snapshots are written to.
const Measurement = "portfolio"

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes one point per snapshot.
type Influx struct {
	client influxdb2.Client
	writer pointWriter
	logger *zap.Logger
}

// NewInflux connects to the server in cfg. The connection is lazy: nothing is sent until the first
// write.
func NewInflux(cfg config.InfluxConfig, logger *zap.Logger) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return newInflux(client, client.WriteAPIBlocking(cfg.Org, cfg.Bucket), logger)
}

func newInflux(client influxdb2.Client, writer pointWriter, logger *zap.Logger) *Influx {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Influx{client: client, writer: writer, logger: logger}
}

// Write stores report as a point.
func (i *Influx) Write(ctx context.Context, report portfolio.Report) error {
	point := SnapshotPoint(report)
	if err := i.writer.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("sink: write %s point: %w", report.Snapshot.Strategy, err)
	}
	i.logger.Debug("wrote influx point",
		zap.String("strategy", report.Snapshot.Strategy),
		zap.Time("time", report.Snapshot.Time),
	)
	return nil
}

// Close releases the client.
func (i *Influx) Close() {
	if i.client != nil {
		i.client.Close()
	}
}

// SnapshotPoint converts report into a point. The size tag buckets strategies by total value.
func SnapshotPoint(report portfolio.Report) *write.Point {
	snap := report.Snapshot
	val := report.Liquidity

	number, suffix := humanize.ComputeSI(snap.TotalValue)
	size := humanize.Ftoa(number) + suffix

	tags := map[string]string{
		"strategy": snap.Strategy,
		"chain":    "arbitrum",
		"size":     size,
		"in_range": strconv.FormatBool(val.InRange),
	}
	if val.VolatileSymbol != "" {
		tags["pair"] = val.VolatileSymbol + "/" + val.StableSymbol
	}

	fields := map[string]interface{}{
		"lp_value":        snap.LPValue,
		"lp_fees":         snap.LPFees,
		"hl_value":        snap.HLValue,
		"hl_fees":         snap.HLFees,
		"total_value":     snap.TotalValue,
		"volatile_amount": val.VolatileAmount,
		"stable_amount":   val.StableAmount,
		"volatile_price":  val.VolatilePrice,
		"hl_margin_used":  report.Account.MarginUsed,
	}
	if snap.APR != nil {
		fields["apr"] = *snap.APR
	}

	return write.NewPoint(Measurement, tags, fields, snap.Time)
}
