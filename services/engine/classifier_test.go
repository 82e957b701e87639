package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_MomentumAtExactVolumeThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cls := NewClassifier(&cfg)

	bars := historyBars(20, 0, 1000, 1000)
	// Volume exactly 2.5x the 20-bar average; the threshold is inclusive.
	bars = append(bars, mkBar(nextTs(bars), 1000, 1005, 999, 1004, 2500))

	out := cls.Classify(bars, len(bars)-1)
	assert.Equal(t, BreakoutMomentum, out.Type)
	assert.InDelta(t, 2.5, out.VolumeRatio, 1e-9)
	assert.InDelta(t, 0.4, out.CandleSizePct, 1e-9)
}

func TestClassify_WeakWhenVolumeJustBelow(t *testing.T) {
	cfg := DefaultConfig()
	cls := NewClassifier(&cfg)

	bars := historyBars(20, 0, 1000, 1000)
	bars = append(bars, mkBar(nextTs(bars), 1000, 1006, 999, 1005, 2499))

	out := cls.Classify(bars, len(bars)-1)
	assert.Equal(t, BreakoutWeak, out.Type)
}

func TestClassify_WeakWhenCandleTooSmall(t *testing.T) {
	cfg := DefaultConfig()
	cls := NewClassifier(&cfg)

	bars := historyBars(20, 0, 1000, 1000)
	// Huge volume but a 0.1% body.
	bars = append(bars, mkBar(nextTs(bars), 1000, 1002, 999, 1001, 5000))

	out := cls.Classify(bars, len(bars)-1)
	assert.Equal(t, BreakoutWeak, out.Type)
}

func TestClassify_InsufficientHistoryIsWeak(t *testing.T) {
	cfg := DefaultConfig()
	cls := NewClassifier(&cfg)

	bars := historyBars(5, 0, 1000, 1000)
	bars = append(bars, mkBar(nextTs(bars), 1000, 1010, 999, 1008, 90000))

	out := cls.Classify(bars, len(bars)-1)
	assert.Equal(t, BreakoutWeak, out.Type, "a breakout is never MOMENTUM on ambiguous data")
}

func TestClassify_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	cls := NewClassifier(&cfg)

	bars := historyBars(20, 0, 500, 800)
	bars = append(bars, mkBar(nextTs(bars), 500, 504, 499, 503, 2400))

	first := cls.Classify(bars, len(bars)-1)
	second := cls.Classify(bars, len(bars)-1)
	assert.Equal(t, first, second)
}
