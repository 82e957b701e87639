package engine

import (
	"github.com/markcheno/go-talib"
)

// ReferenceATRPct computes ATR% through talib over the bars up to and
// including index i. The simulator uses the hand-rolled Wilder ATR above;
// this one exists so tests can cross-check the two against each other.
func ReferenceATRPct(bars []Bar, i, period int) (float64, error) {
	if period < 1 {
		return 0, ErrInsufficientHistory
	}
	if i >= len(bars) || i < period {
		return 0, ErrInsufficientHistory
	}

	n := i + 1
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for j := 0; j < n; j++ {
		high[j], _ = bars[j].High.Float64()
		low[j], _ = bars[j].Low.Float64()
		closes[j], _ = bars[j].Close.Float64()
	}

	atr := talib.Atr(high, low, closes, period)
	last := atr[n-1]
	if closes[n-1] == 0 {
		return 0, ErrInsufficientHistory
	}
	return last / closes[n-1] * 100, nil
}
