package engine

import (
	"github.com/shopspring/decimal"
)

// Lifecycle manages one open position bar by bar: ATR-tiered initial stop,
// the partial-profit ladder, the trailing runner, the time-tier exits and
// the end-of-day close. Within a bar the evaluation order is fixed so that
// competing rules resolve deterministically: hard stop and partial levels
// first, then time tiers, then the trailing-stop update.
type Lifecycle struct {
	cfg   *Config
	pivot PivotRecord
	pos   *Position
	log   *EventLog

	oneRLevel   decimal.Decimal
	targetLevel decimal.Decimal
	runnerLevel decimal.Decimal // Target2 when the scanner supplied one
	tmaxChecked bool
}

// StopWidthForATR picks the tiered stop width for an instrument's ATR%.
// When ATR history is insufficient the volatility is unknown and the lowest
// tier applies; the tier table is the only source of stop width, no other
// rule may narrow it afterwards.
func StopWidthForATR(cfg *Config, atrPct float64, atrOK bool) float64 {
	tiers := cfg.StopTiers
	if !atrOK {
		return tiers[0].StopWidthPct
	}
	for _, t := range tiers {
		if atrPct < t.MaxATRPct {
			return t.StopWidthPct
		}
	}
	return tiers[len(tiers)-1].StopWidthPct
}

// OpenPosition places the initial stop and returns the lifecycle for a new
// position entered at entryPrice on the bar closing at tsMs.
func OpenPosition(cfg *Config, pivot PivotRecord, entryPrice decimal.Decimal, tsMs int64, atrPct float64, atrOK, inOpeningWindow bool, log *EventLog) *Lifecycle {
	width := StopWidthForATR(cfg, atrPct, atrOK)
	if inOpeningWindow {
		width *= cfg.OpeningStopTightening
	}

	hundred := decimal.NewFromInt(100)
	w := decimal.NewFromFloat(width).Div(hundred)
	var stop decimal.Decimal
	if pivot.Side == SideLong {
		stop = entryPrice.Mul(decimal.NewFromInt(1).Sub(w))
	} else {
		stop = entryPrice.Mul(decimal.NewFromInt(1).Add(w))
	}

	pos := newPosition(pivot.Symbol, pivot.Side, entryPrice, stop, width, tsMs)

	r := entryPrice.Sub(stop).Abs()
	oneR := r.Mul(decimal.NewFromFloat(cfg.PartialRMultiple))
	fallback := r.Mul(decimal.NewFromFloat(cfg.FallbackTargetRMultiple))

	l := &Lifecycle{cfg: cfg, pivot: pivot, pos: pos, log: log}
	if pivot.Side == SideLong {
		l.oneRLevel = entryPrice.Add(oneR)
		l.targetLevel = entryPrice.Add(fallback)
	} else {
		l.oneRLevel = entryPrice.Sub(oneR)
		l.targetLevel = entryPrice.Sub(fallback)
	}
	if pivot.HasTarget() {
		l.targetLevel = pivot.Target1
	}
	if pivot.Target2.IsPositive() {
		l.runnerLevel = pivot.Target2
	}

	log.Append(Event{TsMs: tsMs, Type: EventEntry, Symbol: pivot.Symbol, Details: map[string]string{
		"side":       pivot.Side.String(),
		"entry":      entryPrice.String(),
		"stop":       stop.String(),
		"tier_width": decimal.NewFromFloat(width).String(),
	}})
	return l
}

// Position exposes the open position for inspection.
func (l *Lifecycle) Position() *Position { return l.pos }

// Step consumes one bar. Exits are not evaluated on the entry bar; the
// simulator starts calling Step on the bar after entry. Returns the
// completed record once the position fully closes, nil while it stays open.
func (l *Lifecycle) Step(bar Bar, isFinal bool) *PositionRecord {
	p := l.pos
	p.IntervalsSinceEntry++

	// 1. Hard stop and favorable levels, first-touch ordered.
	if rec := l.resolveTouches(bar); rec != nil {
		return rec
	}

	// 2. Excursions from this bar's extremes.
	p.updateExcursions(bar)

	// 3. Time tiers on the bar close.
	if rec := l.checkTimeTiers(bar); rec != nil {
		return rec
	}

	// 4. Trailing runner update, effective from the next bar's stop check.
	l.updateTrailing(bar)

	// 5. Session end closes whatever is left.
	if isFinal {
		return l.exit(bar.TsMs, bar.Close, ExitEOD)
	}
	return nil
}

// resolveTouches walks the bar against the current stop and the next pending
// favorable level, repeating after each partial so a single wide bar can
// fill a partial and then stop out the remainder.
func (l *Lifecycle) resolveTouches(bar Bar) *PositionRecord {
	p := l.pos
	for {
		level, reason, ok := l.nextLevel()
		if !ok {
			if StopTouched(p.Side, bar, p.CurrentStop) {
				l.foldExitBar(bar, p.CurrentStop, p.Side == SideShort)
				return l.exit(bar.TsMs, p.CurrentStop, l.stopReason())
			}
			return nil
		}
		switch ResolveFirstTouch(p.Side, bar, p.CurrentStop, level) {
		case TouchStopFirst:
			l.foldExitBar(bar, p.CurrentStop, p.Side == SideShort)
			return l.exit(bar.TsMs, p.CurrentStop, l.stopReason())
		case TouchLevelFirst:
			if reason == PartialOneR || reason == PartialTarget {
				l.fillPartial(bar.TsMs, level, reason)
				continue // re-check remaining levels within this bar
			}
			// Runner target supplied by the scanner.
			l.foldExitBar(bar, level, p.Side == SideLong)
			return l.exit(bar.TsMs, level, ExitTarget)
		default:
			return nil
		}
	}
}

// foldExitBar credits the portion of the exit bar traversed before the fill
// into the excursions, so MFE/MAE cover the whole holding period. Chart
// order: up candles visit the low leg first, down candles the high leg.
// Movement past the fill price never counts; the position was already flat.
func (l *Lifecycle) foldExitBar(bar Bar, fill decimal.Decimal, fillOnHigh bool) {
	upCandle := bar.Close.GreaterThanOrEqual(bar.Open)
	walked := Bar{TsMs: bar.TsMs, Open: bar.Open, High: bar.Open, Low: bar.Open, Close: fill}
	if fillOnHigh {
		walked.High = fill
		if upCandle {
			walked.Low = bar.Low // low leg traversed on the way up
		}
	} else {
		walked.Low = fill
		if !upCandle {
			walked.High = bar.High // high leg traversed on the way down
		}
	}
	l.pos.updateExcursions(walked)
}

const runnerTarget PartialReason = -1

// nextLevel returns the next unfilled favorable level in ladder order.
func (l *Lifecycle) nextLevel() (decimal.Decimal, PartialReason, bool) {
	n := len(l.pos.Partials)
	switch {
	case n == 0:
		return l.oneRLevel, PartialOneR, true
	case n == 1:
		return l.targetLevel, PartialTarget, true
	case l.runnerLevel.IsPositive():
		return l.runnerLevel, runnerTarget, true
	}
	return decimal.Zero, 0, false
}

func (l *Lifecycle) stopReason() ExitReason {
	if l.pos.TrailActive {
		return ExitTrailStop
	}
	return ExitStop
}

// fillPartial books a rung of the ladder. The first rung also moves the
// stop to breakeven.
func (l *Lifecycle) fillPartial(tsMs int64, price decimal.Decimal, reason PartialReason) {
	p := l.pos
	var fraction decimal.Decimal
	if reason == PartialOneR {
		fraction = l.cfg.Partial1Fraction
	} else {
		fraction = p.SizeFraction.Mul(l.cfg.Partial2Fraction)
	}
	p.takePartial(tsMs, price, fraction, reason)
	l.log.Append(Event{TsMs: tsMs, Type: EventPartialFill, Symbol: p.Symbol, Details: map[string]string{
		"price":     price.String(),
		"fraction":  fraction.String(),
		"reason":    reason.String(),
		"remaining": p.SizeFraction.String(),
	}})
	if reason == PartialOneR && p.tightenStop(p.EntryPrice) {
		l.log.Append(Event{TsMs: tsMs, Type: EventStopMoved, Symbol: p.Symbol, Details: map[string]string{
			"stop": p.CurrentStop.String(),
			"why":  "breakeven_after_first_partial",
		}})
	}
}

// checkTimeTiers applies the multi-tier timeout policy. Elapsed time is the
// interval count times the configured bar interval; it is never derived
// from absolute bar indices.
func (l *Lifecycle) checkTimeTiers(bar Bar) *PositionRecord {
	p := l.pos
	cfg := l.cfg
	elapsedMin := float64(p.IntervalsSinceEntry) * float64(cfg.BarIntervalMs) / 60000.0
	gain := p.GainPct(bar.Close)

	switch {
	case elapsedMin <= float64(cfg.TminMinutes):
		// Tier A: fail fast when the trade never went anywhere.
		if p.MAEPct >= cfg.EarlyFailMAEPct {
			return l.exit(bar.TsMs, bar.Close, ExitTimeTierA)
		}
		if elapsedMin >= float64(cfg.GraceMinutes) && p.MFEPct <= 0 {
			return l.exit(bar.TsMs, bar.Close, ExitTimeTierA)
		}
	case elapsedMin <= float64(cfg.TmidMinutes):
		// Tier B: hard loss, or a flash pop that fully faded.
		if gain <= -cfg.TierBLossPct {
			return l.exit(bar.TsMs, bar.Close, ExitTimeTierB)
		}
		if p.MFEPct >= cfg.FlashPopMFEPct && gain <= 0 {
			return l.exit(bar.TsMs, bar.Close, ExitTimeTierB)
		}
	default:
		if elapsedMin <= float64(cfg.TmaxMinutes) {
			// Tier C window: loss beyond half the stop distance.
			if gain <= -cfg.TierCLossFracOfStop*p.StopDistancePct() {
				return l.exit(bar.TsMs, bar.Close, ExitTimeTierC)
			}
		}
		if elapsedMin >= float64(cfg.TmaxMinutes) && !l.tmaxChecked {
			// Tier C deadline: minimal progress required by Tmax, checked
			// exactly once.
			l.tmaxChecked = true
			if gain < cfg.MinProgressPct {
				return l.exit(bar.TsMs, bar.Close, ExitTimeTierC)
			}
		}
		if elapsedMin > float64(cfg.TmaxMinutes) && l.tmaxChecked {
			// Tier D: survivors whose momentum collapsed back to flat.
			survived := len(p.Partials) > 0 || p.MFEPct >= cfg.MinProgressPct
			if survived && p.MFEPct >= cfg.MomentumLostMFEPct && gain <= cfg.MomentumLostGainPct {
				return l.exit(bar.TsMs, bar.Close, ExitTimeTierD)
			}
		}
	}
	return nil
}

// updateTrailing activates and advances the runner's trailing stop. The
// trail arms only after the first partial and once the open gain clears the
// activation threshold; from then on the stop follows the water mark and
// only ever tightens.
func (l *Lifecycle) updateTrailing(bar Bar) {
	p := l.pos
	cfg := l.cfg
	if !p.TrailActive {
		if len(p.Partials) == 0 {
			return
		}
		if p.GainPct(bar.Close) < cfg.TrailActivationPct {
			return
		}
		p.TrailActive = true
		l.log.Append(Event{TsMs: bar.TsMs, Type: EventTrailActivated, Symbol: p.Symbol, Details: map[string]string{
			"water_mark": p.WaterMark.String(),
		}})
	}

	hundred := decimal.NewFromInt(100)
	trail := decimal.NewFromFloat(cfg.TrailPct).Div(hundred)
	var stop decimal.Decimal
	if p.Side == SideLong {
		stop = p.WaterMark.Mul(decimal.NewFromInt(1).Sub(trail))
	} else {
		stop = p.WaterMark.Mul(decimal.NewFromInt(1).Add(trail))
	}
	if p.tightenStop(stop) {
		l.log.Append(Event{TsMs: bar.TsMs, Type: EventStopMoved, Symbol: p.Symbol, Details: map[string]string{
			"stop": p.CurrentStop.String(),
			"why":  "trail",
		}})
	}
}

// ForceClose flattens the position at the given price with an EOD exit.
// Used when the stream ends before the position saw a single full bar.
func (l *Lifecycle) ForceClose(tsMs int64, price decimal.Decimal) *PositionRecord {
	return l.exit(tsMs, price, ExitEOD)
}

func (l *Lifecycle) exit(tsMs int64, price decimal.Decimal, reason ExitReason) *PositionRecord {
	rec := l.pos.close(tsMs, price, reason)
	l.log.Append(Event{TsMs: tsMs, Type: EventExit, Symbol: rec.Symbol, Details: map[string]string{
		"price":  price.String(),
		"reason": reason.String(),
		"pnl":    rec.RealizedPnLPct.String(),
	}})
	return &rec
}
