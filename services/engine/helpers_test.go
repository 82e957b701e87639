package engine

import (
	"github.com/shopspring/decimal"
)

// Test fixtures shared across the engine tests.

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func mkBar(ts int64, open, high, low, closeP, volume float64) Bar {
	return Bar{
		TsMs:   ts,
		Open:   d(open),
		High:   d(high),
		Low:    d(low),
		Close:  d(closeP),
		Volume: d(volume),
	}
}

const minuteMs = int64(60_000)

// historyBars builds n one-minute bars drifting sideways around price with
// enough bar-to-bar range that the choppy filter stays quiet at the default
// floor. Volume is constant so ratios are easy to reason about.
func historyBars(n int, startTs int64, price, volume float64) []Bar {
	bars := make([]Bar, 0, n)
	for i := 0; i < n; i++ {
		ts := startTs + int64(i)*minuteMs
		bars = append(bars, mkBar(ts, price, price*1.006, price*0.994, price*1.0005, volume))
	}
	return bars
}

func nextTs(bars []Bar) int64 { return bars[len(bars)-1].TsMs + minuteMs }

func longPivot(symbol string, pivot, target1 float64) PivotRecord {
	return PivotRecord{
		Symbol:     symbol,
		Side:       SideLong,
		PivotPrice: d(pivot),
		Target1:    d(target1),
	}
}
