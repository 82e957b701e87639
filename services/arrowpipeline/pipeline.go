// Package arrowpipeline serializes run output to Apache Arrow IPC streams
// for analysis in Arrow-native tooling.
package arrowpipeline

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"github.com/karthikjanagiraman/DayTrader-sub004/services/engine"
)

// Exporter writes Arrow IPC record batches. Safe for sequential use only.
type Exporter struct {
	alloc  memory.Allocator
	logger *zap.Logger
}

func NewExporter(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{alloc: memory.NewGoAllocator(), logger: logger}
}

var positionSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "day", Type: arrow.BinaryTypes.String},
	{Name: "side", Type: arrow.BinaryTypes.String},
	{Name: "entry_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "initial_stop", Type: arrow.PrimitiveTypes.Float64},
	{Name: "stop_tier_pct", Type: arrow.PrimitiveTypes.Float64},
	{Name: "partial_fills", Type: arrow.PrimitiveTypes.Int32},
	{Name: "exit_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_reason", Type: arrow.BinaryTypes.String},
	{Name: "realized_pnl_pct", Type: arrow.PrimitiveTypes.Float64},
	{Name: "mfe_pct", Type: arrow.PrimitiveTypes.Float64},
	{Name: "mae_pct", Type: arrow.PrimitiveTypes.Float64},
	{Name: "intervals_held", Type: arrow.PrimitiveTypes.Int32},
}, nil)

// WritePositions streams every closed position of the run as one IPC batch.
func (e *Exporter) WritePositions(w io.Writer, results []*engine.UnitResult) error {
	var n int
	for _, r := range results {
		n += len(r.Positions)
	}
	if n == 0 {
		return fmt.Errorf("no positions to export")
	}

	b := array.NewRecordBuilder(e.alloc, positionSchema)
	defer b.Release()

	for _, r := range results {
		for _, p := range r.Positions {
			b.Field(0).(*array.StringBuilder).Append(p.Symbol)
			b.Field(1).(*array.StringBuilder).Append(r.Day)
			b.Field(2).(*array.StringBuilder).Append(p.Side.String())
			b.Field(3).(*array.Int64Builder).Append(p.EntryTsMs)
			b.Field(4).(*array.Float64Builder).Append(p.EntryPrice.InexactFloat64())
			b.Field(5).(*array.Float64Builder).Append(p.InitialStop.InexactFloat64())
			b.Field(6).(*array.Float64Builder).Append(p.StopTierPct)
			b.Field(7).(*array.Int32Builder).Append(int32(len(p.Partials)))
			b.Field(8).(*array.Int64Builder).Append(p.ExitTsMs)
			b.Field(9).(*array.Float64Builder).Append(p.ExitPrice.InexactFloat64())
			b.Field(10).(*array.StringBuilder).Append(p.ExitReason.String())
			b.Field(11).(*array.Float64Builder).Append(p.RealizedPnLPct.InexactFloat64())
			b.Field(12).(*array.Float64Builder).Append(p.MFEPct)
			b.Field(13).(*array.Float64Builder).Append(p.MAEPct)
			b.Field(14).(*array.Int32Builder).Append(int32(p.IntervalsHeld))
		}
	}

	record := b.NewRecord()
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(positionSchema), ipc.WithAllocator(e.alloc))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("write positions record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close ipc writer: %w", err)
	}
	e.logger.Debug("exported positions", zap.Int("rows", n))
	return nil
}

var barSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "open_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteBars streams one symbol's bar stream as an IPC batch, useful for
// eyeballing an individual unit's input next to its output.
func (e *Exporter) WriteBars(w io.Writer, symbol string, bars []engine.Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("no bars to export")
	}

	b := array.NewRecordBuilder(e.alloc, barSchema)
	defer b.Release()

	for _, bar := range bars {
		b.Field(0).(*array.StringBuilder).Append(symbol)
		b.Field(1).(*array.Int64Builder).Append(bar.TsMs)
		b.Field(2).(*array.Float64Builder).Append(bar.Open.InexactFloat64())
		b.Field(3).(*array.Float64Builder).Append(bar.High.InexactFloat64())
		b.Field(4).(*array.Float64Builder).Append(bar.Low.InexactFloat64())
		b.Field(5).(*array.Float64Builder).Append(bar.Close.InexactFloat64())
		b.Field(6).(*array.Float64Builder).Append(bar.Volume.InexactFloat64())
	}

	record := b.NewRecord()
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(barSchema), ipc.WithAllocator(e.alloc))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("write bars record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close ipc writer: %w", err)
	}
	e.logger.Debug("exported bars", zap.String("symbol", symbol), zap.Int("rows", len(bars)))
	return nil
}
