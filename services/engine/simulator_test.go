package engine

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunUnit_RejectsInvalidPivot(t *testing.T) {
	cfg := DefaultConfig()
	sim, err := NewSimulator(&cfg, nil)
	require.NoError(t, err)

	_, err = sim.RunUnit(Unit{
		Symbol: "TST",
		Day:    "2025-06-02",
		Pivot:  PivotRecord{Symbol: "TST", Side: SideLong},
		Bars:   historyBars(5, 0, 100, 1000),
	})
	var perr *InvalidPivotError
	require.ErrorAs(t, err, &perr)
}

func TestRunUnit_RejectsGappedStream(t *testing.T) {
	cfg := DefaultConfig()
	sim, err := NewSimulator(&cfg, nil)
	require.NoError(t, err)

	bars := historyBars(5, 0, 100, 1000)
	// Drop a minute between bars 4 and 5.
	bars = append(bars, mkBar(nextTs(bars)+minuteMs, 100, 100.6, 99.4, 100.05, 1000))

	_, err = sim.RunUnit(Unit{
		Symbol: "TST",
		Day:    "2025-06-02",
		Pivot:  longPivot("TST", 101, 104),
		Bars:   bars,
	})
	var gap *DataGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, 5, gap.Index)
}

func TestRunUnit_EntryThenStopOut(t *testing.T) {
	cfg := DefaultConfig()
	sim, err := NewSimulator(&cfg, nil)
	require.NoError(t, err)

	bars := historyBars(30, 0, 100, 1000)
	// Momentum cross enters at 101.50; the next bar takes out the stop.
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	bars = append(bars, mkBar(nextTs(bars), 101.4, 101.45, 100.5, 100.6, 1200))
	for i := 0; i < 5; i++ {
		bars = append(bars, mkBar(nextTs(bars), 100.6, 100.7, 100.5, 100.6, 1000))
	}

	res, err := sim.RunUnit(Unit{
		Symbol: "TST",
		Day:    "2025-06-02",
		Pivot:  longPivot("TST", 101, 104),
		Bars:   bars,
	})
	require.NoError(t, err)

	require.Len(t, res.Positions, 1)
	pos := res.Positions[0]
	assert.Equal(t, ExitStop, pos.ExitReason)
	assert.True(t, pos.EntryPrice.Equal(d(101.5)))
	assert.Equal(t, 1, pos.IntervalsHeld)
	assert.True(t, pos.ExitPrice.LessThan(pos.EntryPrice))

	require.Len(t, res.Decisions, 1)
	assert.Equal(t, DecisionEntered, res.Decisions[0].Decision)
	assert.NotEmpty(t, res.Events)
}

func TestRunUnit_FinalBarEntryFlattensImmediately(t *testing.T) {
	cfg := DefaultConfig()
	sim, err := NewSimulator(&cfg, nil)
	require.NoError(t, err)

	bars := historyBars(30, 0, 100, 1000)
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))

	res, err := sim.RunUnit(Unit{
		Symbol: "TST",
		Day:    "2025-06-02",
		Pivot:  longPivot("TST", 101, 104),
		Bars:   bars,
	})
	require.NoError(t, err)

	require.Len(t, res.Positions, 1)
	pos := res.Positions[0]
	assert.Equal(t, ExitEOD, pos.ExitReason)
	assert.Equal(t, 0, pos.IntervalsHeld)
	assert.True(t, pos.ExitPrice.Equal(d(101.5)))
	assert.True(t, pos.RealizedPnLPct.IsZero())
}

func TestRunUnit_QuickStopOutBlocksDeadSetupRetry(t *testing.T) {
	cfg := DefaultConfig()
	sim, err := NewSimulator(&cfg, nil)
	require.NoError(t, err)

	bars := historyBars(30, 0, 100, 1000)
	// Momentum entry at 101.50, then straight down through the stop with
	// no favorable movement at all.
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	bars = append(bars, mkBar(nextTs(bars), 101.3, 101.35, 99.0, 99.2, 1200))
	bars = append(bars, mkBar(nextTs(bars), 99.3, 99.5, 99.0, 99.2, 1000))
	// Fresh momentum re-cross: the retry must be refused, not re-entered.
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3200))
	bars = append(bars, mkBar(nextTs(bars), 101.4, 101.5, 101.3, 101.4, 1000))
	bars = append(bars, mkBar(nextTs(bars), 101.4, 101.5, 101.3, 101.4, 1000))

	res, err := sim.RunUnit(Unit{
		Symbol: "TST",
		Day:    "2025-06-02",
		Pivot:  longPivot("TST", 101, 104),
		Bars:   bars,
	})
	require.NoError(t, err)

	require.Len(t, res.Positions, 1)
	pos := res.Positions[0]
	assert.Equal(t, ExitStop, pos.ExitReason)
	assert.Equal(t, 1, pos.IntervalsHeld)
	assert.Zero(t, pos.MFEPct)
	assert.InDelta(t, 0.7, pos.MAEPct, 1e-9)

	require.Len(t, res.Decisions, 2)
	assert.Equal(t, DecisionEntered, res.Decisions[0].Decision)
	assert.Equal(t, DecisionBlocked, res.Decisions[1].Decision)
	assert.Equal(t, ReasonReentryQuality, res.Decisions[1].Reason)
}

func TestRunUnit_QuickStopOutRetriesWhenExcursionsQualify(t *testing.T) {
	cfg := DefaultConfig()
	sim, err := NewSimulator(&cfg, nil)
	require.NoError(t, err)

	bars := historyBars(30, 0, 100, 1000)
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	// Down candle: pops 0.59% before the stop takes it out, so the
	// MFE/MAE ratio (0.59/0.70) clears the retry floor.
	bars = append(bars, mkBar(nextTs(bars), 102.0, 102.1, 100.5, 100.6, 1500))
	bars = append(bars, mkBar(nextTs(bars), 100.7, 100.8, 100.5, 100.6, 1000))
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3200))

	res, err := sim.RunUnit(Unit{
		Symbol: "TST",
		Day:    "2025-06-02",
		Pivot:  longPivot("TST", 101, 104),
		Bars:   bars,
	})
	require.NoError(t, err)

	require.Len(t, res.Positions, 2)
	assert.Equal(t, ExitStop, res.Positions[0].ExitReason)
	assert.Greater(t, res.Positions[0].MFEPct, 0.0)
	assert.Equal(t, ExitEOD, res.Positions[1].ExitReason, "re-entry on the final bar flattens at the close")
	assert.True(t, res.Positions[1].EntryPrice.Equal(d(101.5)))

	require.Len(t, res.Decisions, 2)
	assert.Equal(t, DecisionEntered, res.Decisions[0].Decision)
	assert.Equal(t, DecisionEntered, res.Decisions[1].Decision)
}

func TestRunUnit_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	sim, err := NewSimulator(&cfg, nil)
	require.NoError(t, err)

	bars := historyBars(30, 0, 100, 1000)
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	bars = append(bars, mkBar(nextTs(bars), 101.4, 101.45, 100.5, 100.6, 1200))
	bars = append(bars, mkBar(nextTs(bars), 100.6, 100.7, 100.5, 100.6, 1000))

	unit := Unit{Symbol: "TST", Day: "2025-06-02", Pivot: longPivot("TST", 101, 104), Bars: bars}

	a, err := sim.RunUnit(unit)
	require.NoError(t, err)
	b, err := sim.RunUnit(unit)
	require.NoError(t, err)
	assert.True(t, reflect.DeepEqual(a, b), "identical input must replay identically")
}
