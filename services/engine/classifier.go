package engine

// BreakoutType is the classifier verdict for a pivot cross.
type BreakoutType int

const (
	BreakoutUnset BreakoutType = iota
	BreakoutWeak
	BreakoutMomentum
)

func (t BreakoutType) String() string {
	switch t {
	case BreakoutMomentum:
		return "MOMENTUM"
	case BreakoutWeak:
		return "WEAK"
	default:
		return "UNSET"
	}
}

// Classification is the classifier output for one bar.
type Classification struct {
	Type          BreakoutType
	VolumeRatio   float64
	CandleSizePct float64
}

// Classifier grades breakout strength from volume ratio and candle size.
// Pure function of the bar window; identical inputs always yield the same
// verdict.
type Classifier struct {
	Lookback      int
	VolumeRatioAt float64 // inclusive MOMENTUM threshold
	CandlePctAt   float64 // inclusive MOMENTUM threshold, percent
}

// NewClassifier builds a classifier from config thresholds.
func NewClassifier(cfg *Config) Classifier {
	return Classifier{
		Lookback:      cfg.VolumeLookback,
		VolumeRatioAt: cfg.MomentumVolumeRatio,
		CandlePctAt:   cfg.MomentumCandlePct,
	}
}

// Classify grades bar i. Insufficient lookback history classifies as WEAK;
// a breakout is never MOMENTUM on ambiguous data.
func (c Classifier) Classify(bars []Bar, i int) Classification {
	ratio, err := VolumeRatio(bars, i, c.Lookback)
	candlePct := bars[i].BodyPct() * 100
	out := Classification{Type: BreakoutWeak, VolumeRatio: ratio, CandleSizePct: candlePct}
	if err == nil && ratio >= c.VolumeRatioAt && candlePct >= c.CandlePctAt {
		out.Type = BreakoutMomentum
	}
	return out
}
