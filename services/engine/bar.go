package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is a single OHLCV sample. Bars arrive closed, at one fixed interval
// configured in Config.BarIntervalMs; no component assumes its own cadence.
type Bar struct {
	TsMs   int64
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// Time returns the bar open time in UTC.
func (b Bar) Time() time.Time { return time.UnixMilli(b.TsMs).UTC() }

// BodyPct returns |close-open|/open as a fraction (0.002 = 0.2%).
func (b Bar) BodyPct() float64 {
	if b.Open.IsZero() {
		return 0
	}
	body, _ := b.Close.Sub(b.Open).Abs().Div(b.Open).Float64()
	return body
}

// ValidateStream checks that bars are strictly ordered and spaced at exactly
// intervalMs. Gaps and out-of-order timestamps abort the symbol/day unit;
// silently skipping bars has previously hidden bar-resolution mismatches.
func ValidateStream(symbol string, bars []Bar, intervalMs int64) error {
	for i := 1; i < len(bars); i++ {
		d := bars[i].TsMs - bars[i-1].TsMs
		if d == intervalMs {
			continue
		}
		return &DataGapError{
			Symbol:     symbol,
			Index:      i,
			PrevTsMs:   bars[i-1].TsMs,
			TsMs:       bars[i].TsMs,
			IntervalMs: intervalMs,
		}
	}
	return nil
}
