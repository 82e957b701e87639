package engine

import "github.com/shopspring/decimal"

// First-touch resolution for one bar: when both the protective stop and a
// favorable level sit inside the bar's range, the chart-order path decides
// which was hit first. Up candles walk open -> low -> high -> close, down
// candles walk open -> high -> low -> close.

// TouchResult reports which side of a position was reached first.
type TouchResult int

const (
	TouchNone TouchResult = iota
	TouchStopFirst
	TouchLevelFirst
)

// StopTouched reports whether the protective stop traded in this bar.
func StopTouched(side Side, bar Bar, stop decimal.Decimal) bool {
	if side == SideLong {
		return bar.Low.LessThanOrEqual(stop)
	}
	return bar.High.GreaterThanOrEqual(stop)
}

// LevelTouched reports whether a favorable level traded in this bar.
func LevelTouched(side Side, bar Bar, level decimal.Decimal) bool {
	if side == SideLong {
		return bar.High.GreaterThanOrEqual(level)
	}
	return bar.Low.LessThanOrEqual(level)
}

// ResolveFirstTouch orders a stop hit against a favorable-level hit within a
// single bar.
func ResolveFirstTouch(side Side, bar Bar, stop, level decimal.Decimal) TouchResult {
	stopHit := StopTouched(side, bar, stop)
	levelHit := LevelTouched(side, bar, level)
	switch {
	case !stopHit && !levelHit:
		return TouchNone
	case stopHit && !levelHit:
		return TouchStopFirst
	case levelHit && !stopHit:
		return TouchLevelFirst
	}

	// Both inside the bar: walk the chart-order path.
	upCandle := bar.Close.GreaterThanOrEqual(bar.Open)
	if side == SideLong {
		// Stop below, level above. Up candle visits the low first.
		if upCandle {
			return TouchStopFirst
		}
		return TouchLevelFirst
	}
	// Short: stop above, level below. Up candle visits the low first.
	if upCandle {
		return TouchLevelFirst
	}
	return TouchStopFirst
}
