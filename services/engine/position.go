package engine

import "github.com/shopspring/decimal"

// Position is the single open position for a symbol, owned exclusively by
// the lifecycle manager. SizeFraction starts at 1.0, only ever shrinks, and
// reaches zero exactly once, at the final exit. CurrentStop only ever
// tightens once set: up for longs, down for shorts.
type Position struct {
	Symbol      string
	Side        Side
	EntryPrice  decimal.Decimal
	EntryTsMs   int64
	InitialStop decimal.Decimal
	CurrentStop decimal.Decimal
	StopTierPct float64

	SizeFraction decimal.Decimal
	Partials     []PartialFill

	// Excursions as % of entry, side-adjusted; MAE is stored positive.
	MFEPct float64
	MAEPct float64

	// Water mark for the trailing runner: highest high for longs, lowest
	// low for shorts, tracked from entry.
	WaterMark   decimal.Decimal
	TrailActive bool

	// Elapsed intervals since entry. Kept separate from any absolute bar
	// index; elapsed time is never reconstructed from index arithmetic.
	IntervalsSinceEntry int

	realizedPnLPct decimal.Decimal
}

func newPosition(symbol string, side Side, entry, stop decimal.Decimal, tierPct float64, tsMs int64) *Position {
	return &Position{
		Symbol:       symbol,
		Side:         side,
		EntryPrice:   entry,
		EntryTsMs:    tsMs,
		InitialStop:  stop,
		CurrentStop:  stop,
		StopTierPct:  tierPct,
		SizeFraction: decimal.NewFromInt(1),
		WaterMark:    entry,
	}
}

// GainPct returns the side-adjusted unrealized move at price, % of entry.
func (p *Position) GainPct(price decimal.Decimal) float64 {
	diff := price.Sub(p.EntryPrice)
	if p.Side == SideShort {
		diff = diff.Neg()
	}
	out, _ := diff.Div(p.EntryPrice).Mul(decimal.NewFromInt(100)).Float64()
	return out
}

// StopDistancePct returns the initial risk R as % of entry.
func (p *Position) StopDistancePct() float64 {
	out, _ := p.EntryPrice.Sub(p.InitialStop).Abs().Div(p.EntryPrice).Mul(decimal.NewFromInt(100)).Float64()
	return out
}

// updateExcursions folds a bar's extremes into MFE/MAE and the water mark.
func (p *Position) updateExcursions(bar Bar) {
	favorable, adverse := bar.High, bar.Low
	if p.Side == SideShort {
		favorable, adverse = bar.Low, bar.High
	}
	if g := p.GainPct(favorable); g > p.MFEPct {
		p.MFEPct = g
	}
	if a := -p.GainPct(adverse); a > p.MAEPct {
		p.MAEPct = a
	}
	if p.Side == SideLong {
		if favorable.GreaterThan(p.WaterMark) {
			p.WaterMark = favorable
		}
	} else if favorable.LessThan(p.WaterMark) {
		p.WaterMark = favorable
	}
}

// tightenStop moves the stop only in the tightening direction and reports
// whether it moved. A tiered stop is never widened after placement.
func (p *Position) tightenStop(stop decimal.Decimal) bool {
	if p.Side == SideLong {
		if stop.GreaterThan(p.CurrentStop) {
			p.CurrentStop = stop
			return true
		}
		return false
	}
	if stop.LessThan(p.CurrentStop) {
		p.CurrentStop = stop
		return true
	}
	return false
}

// takePartial books a fill of fraction (of original size) at price.
func (p *Position) takePartial(tsMs int64, price, fraction decimal.Decimal, reason PartialReason) {
	p.Partials = append(p.Partials, PartialFill{TsMs: tsMs, Price: price, Fraction: fraction, Reason: reason})
	p.SizeFraction = p.SizeFraction.Sub(fraction)
	p.realizedPnLPct = p.realizedPnLPct.Add(fraction.Mul(p.pnlPctAt(price)))
}

func (p *Position) pnlPctAt(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Side == SideShort {
		diff = diff.Neg()
	}
	return diff.Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
}

// close books the final exit of the remaining fraction and returns the
// completed record.
func (p *Position) close(tsMs int64, price decimal.Decimal, reason ExitReason) PositionRecord {
	p.realizedPnLPct = p.realizedPnLPct.Add(p.SizeFraction.Mul(p.pnlPctAt(price)))
	p.SizeFraction = decimal.Zero
	return PositionRecord{
		Symbol:         p.Symbol,
		Side:           p.Side,
		EntryPrice:     p.EntryPrice,
		EntryTsMs:      p.EntryTsMs,
		InitialStop:    p.InitialStop,
		StopTierPct:    p.StopTierPct,
		Partials:       p.Partials,
		ExitPrice:      price,
		ExitTsMs:       tsMs,
		ExitReason:     reason,
		RealizedPnLPct: p.realizedPnLPct,
		MFEPct:         p.MFEPct,
		MAEPct:         p.MAEPct,
		IntervalsHeld:  p.IntervalsSinceEntry,
	}
}
