package engine

import "math"

// Indicator helpers. Computed up to a bar index only, the way a live feed
// would see them; nothing peeks forward.

// AverageVolume returns the mean volume of the lookback bars preceding index
// i (the bar at i itself is excluded so a spike does not dilute its own
// baseline).
func AverageVolume(bars []Bar, i, lookback int) (float64, error) {
	if lookback < 1 || i < lookback {
		return 0, ErrInsufficientHistory
	}
	var sum float64
	for j := i - lookback; j < i; j++ {
		v, _ := bars[j].Volume.Float64()
		sum += v
	}
	return sum / float64(lookback), nil
}

// VolumeRatio returns bar i's volume relative to its lookback average.
func VolumeRatio(bars []Bar, i, lookback int) (float64, error) {
	avg, err := AverageVolume(bars, i, lookback)
	if err != nil {
		return 0, err
	}
	if avg <= 0 {
		return 0, ErrInsufficientHistory
	}
	v, _ := bars[i].Volume.Float64()
	return v / avg, nil
}

// ATR returns the Average True Range at bar index i using Wilder's smoothing
// seeded with an SMA of the first period true ranges.
func ATR(bars []Bar, i, period int) (float64, error) {
	if period < 1 || i < period {
		return 0, ErrInsufficientHistory
	}
	trueRange := func(j int) float64 {
		high, _ := bars[j].High.Float64()
		low, _ := bars[j].Low.Float64()
		prevClose, _ := bars[j-1].Close.Float64()
		tr := high - low
		tr = math.Max(tr, math.Abs(high-prevClose))
		return math.Max(tr, math.Abs(low-prevClose))
	}

	var atr float64
	for j := 1; j <= period; j++ {
		atr += trueRange(j)
	}
	atr /= float64(period)

	// RMA = (RMA*(N-1) + TR) / N
	for j := period + 1; j <= i; j++ {
		atr = (atr*float64(period-1) + trueRange(j)) / float64(period)
	}
	return atr, nil
}

// ATRPct returns ATR at bar i as a percentage of that bar's close.
func ATRPct(bars []Bar, i, period int) (float64, error) {
	atr, err := ATR(bars, i, period)
	if err != nil {
		return 0, err
	}
	close, _ := bars[i].Close.Float64()
	if close <= 0 {
		return 0, ErrInsufficientHistory
	}
	return atr / close * 100, nil
}

// RangePct returns (max high - min low) over the lookback window ending at
// bar i, as a percentage of bar i's close. Used by the choppy-market filter.
func RangePct(bars []Bar, i, lookback int) (float64, error) {
	if lookback < 1 || i+1 < lookback {
		return 0, ErrInsufficientHistory
	}
	hi := math.Inf(-1)
	lo := math.Inf(1)
	for j := i - lookback + 1; j <= i; j++ {
		h, _ := bars[j].High.Float64()
		l, _ := bars[j].Low.Float64()
		hi = math.Max(hi, h)
		lo = math.Min(lo, l)
	}
	close, _ := bars[i].Close.Float64()
	if close <= 0 {
		return 0, ErrInsufficientHistory
	}
	return (hi - lo) / close * 100, nil
}
