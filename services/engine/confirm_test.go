package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// weakCross appends a pivot cross with a small body and unremarkable volume
// so classification comes out WEAK and the machine starts tracking.
func weakCross(bars []Bar, closeP, volume float64) []Bar {
	return append(bars, mkBar(nextTs(bars), closeP-0.05, closeP+0.1, closeP-0.1, closeP, volume))
}

func TestConfirm_MomentumCrossEntersImmediately(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}
	require.Equal(t, PhaseMonitoring, m.Phase())

	// 3x volume and a 0.59% body through the pivot.
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	sig := m.Step(bars, 30)
	require.NotNil(t, sig)
	assert.Equal(t, ReasonMomentum, sig.Reason)
	assert.True(t, sig.Price.Equal(d(101.5)))
	assert.Equal(t, 30, sig.BarIndex)
	assert.Equal(t, 0, sig.IntervalsSinceBreakout)
	assert.Equal(t, BreakoutMomentum, sig.Breakout.Type)

	require.Len(t, m.Decisions(), 1)
	assert.Equal(t, DecisionEntered, m.Decisions()[0].Decision)
}

func TestConfirm_WeakCrossThenDelayedMomentum(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}

	// Cross on 1.3x volume: weak, start tracking.
	bars = weakCross(bars, 101.3, 1300)
	require.Nil(t, m.Step(bars, 30))
	require.Equal(t, PhaseWeakTracking, m.Phase())

	// One bar later volume and body both confirm.
	bars = append(bars, mkBar(nextTs(bars), 101.3, 101.8, 101.25, 101.75, 3000))
	sig := m.Step(bars, 31)
	require.NotNil(t, sig)
	assert.Equal(t, ReasonDelayedMomentum, sig.Reason)
	assert.Equal(t, 1, sig.IntervalsSinceBreakout)
}

func TestConfirm_DelayedMomentumBlockedByVolumeDecay(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}

	// Huge spike (4.5x) but a near-doji body: weak, peak ratio 4.5.
	bars = append(bars, mkBar(nextTs(bars), 101.45, 101.6, 101.3, 101.5, 4500))
	require.Nil(t, m.Step(bars, 30))
	require.Equal(t, PhaseWeakTracking, m.Phase())

	// Next bar classifies as momentum (ratio 2.55) but sits below 60% of
	// the peak spike, so the delayed entry is refused.
	bars = append(bars, mkBar(nextTs(bars), 101.2, 101.8, 101.15, 101.7, 3000))
	require.Nil(t, m.Step(bars, 31))
	assert.Equal(t, PhaseWeakTracking, m.Phase(), "decay keeps tracking alive")

	require.Len(t, m.Decisions(), 1)
	dec := m.Decisions()[0]
	assert.Equal(t, DecisionBlocked, dec.Decision)
	assert.Equal(t, ReasonVolumeDecay, dec.Reason)
	assert.Equal(t, PhaseWeakTracking, dec.ResultingPhase)
}

func TestConfirm_PullbackRetestBounce(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}

	bars = weakCross(bars, 101.3, 1300)
	require.Nil(t, m.Step(bars, 30))

	// Dip back to within 0.15% of the pivot: retest, not a breakdown.
	bars = append(bars, mkBar(nextTs(bars), 101.2, 101.25, 100.85, 100.9, 1000))
	require.Nil(t, m.Step(bars, 31))
	require.Equal(t, PhasePullbackRetest, m.Phase())

	// Momentum bounce back through the pivot enters.
	bars = append(bars, mkBar(nextTs(bars), 101.1, 101.7, 101.05, 101.6, 3000))
	sig := m.Step(bars, 32)
	require.NotNil(t, sig)
	assert.Equal(t, ReasonPullbackBounce, sig.Reason)
	assert.Equal(t, 2, sig.IntervalsSinceBreakout)
}

func TestConfirm_DeepBreakdownReArmsDetection(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}

	bars = weakCross(bars, 101.3, 1300)
	require.Nil(t, m.Step(bars, 30))
	require.Equal(t, PhaseWeakTracking, m.Phase())

	// Collapse far past the retest band: the cross is dropped silently.
	bars = append(bars, mkBar(nextTs(bars), 101.0, 101.05, 98.9, 99.0, 1500))
	require.Nil(t, m.Step(bars, 31))
	require.Equal(t, PhaseMonitoring, m.Phase())
	assert.Empty(t, m.Decisions(), "a breakdown is not an attempt outcome")

	// A fresh momentum cross starts over and enters.
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	sig := m.Step(bars, 32)
	require.NotNil(t, sig)
	assert.Equal(t, ReasonMomentum, sig.Reason)
	assert.Equal(t, 0, sig.IntervalsSinceBreakout)
}

func TestConfirm_SustainedBreakAboveCheckpoint(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	// Checkpoint sits halfway from 101 to 105, at 103.
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 105), log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}

	bars = weakCross(bars, 101.5, 1300)
	require.Nil(t, m.Step(bars, 30))

	// Holds above the checkpoint on 1.77x volume: not momentum, but enough
	// to qualify as a sustained break.
	bars = append(bars, mkBar(nextTs(bars), 101.5, 103.3, 101.45, 103.2, 1800))
	sig := m.Step(bars, 31)
	require.NotNil(t, sig)
	assert.Equal(t, ReasonSustainedBreak, sig.Reason)
	assert.Equal(t, BreakoutWeak, sig.Breakout.Type)
}

func TestConfirm_RoomToTargetKillsTheCross(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	pivot := longPivot("TST", 101, 102)
	pivot.ScannerRiskReward = 5.0 // stale scanner figure, must be ignored
	m := NewConfirmMachine(&cfg, pivot, log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}

	// Momentum cross, but only 0.49% of room left to target1.
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	require.Nil(t, m.Step(bars, 30))
	require.Equal(t, PhaseMonitoring, m.Phase())

	// Price holding above the pivot never re-crosses, so the session stays
	// quiet after the one blocked attempt.
	for i := 0; i < 5; i++ {
		bars = append(bars, mkBar(nextTs(bars), 101.4, 101.5, 101.3, 101.4, 1000))
		require.Nil(t, m.Step(bars, len(bars)-1))
	}

	require.Len(t, m.Decisions(), 1)
	dec := m.Decisions()[0]
	assert.Equal(t, DecisionBlocked, dec.Decision)
	assert.Equal(t, ReasonRoomToTarget, dec.Reason)
	assert.Equal(t, PhaseMonitoring, dec.ResultingPhase)
}

func TestConfirm_ChoppyTapeBlocksButKeepsTracking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChoppyRangeFloorPct = 2.0
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	// Very tight history so the window range stays under the raised floor.
	bars := make([]Bar, 0, 34)
	for i := 0; i < 30; i++ {
		bars = append(bars, mkBar(int64(i)*minuteMs, 100.9, 101.0, 100.8, 100.9, 1000))
	}
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}

	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	require.Nil(t, m.Step(bars, 30))
	assert.Equal(t, PhaseWeakTracking, m.Phase(), "attempt blocked, tracking continues")

	require.Len(t, m.Decisions(), 1)
	assert.Equal(t, ReasonChoppyMarket, m.Decisions()[0].Reason)
}

func TestConfirm_ChoppyBlockKeepsPullbackPhase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChoppyRangeFloorPct = 2.0
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	bars := make([]Bar, 0, 34)
	for i := 0; i < 30; i++ {
		bars = append(bars, mkBar(int64(i)*minuteMs, 100.9, 101.0, 100.8, 100.9, 1000))
	}
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}

	bars = weakCross(bars, 101.3, 1300)
	require.Nil(t, m.Step(bars, 30))
	bars = append(bars, mkBar(nextTs(bars), 101.2, 101.25, 100.85, 100.9, 1000))
	require.Nil(t, m.Step(bars, 31))
	require.Equal(t, PhasePullbackRetest, m.Phase())

	// Momentum bounce on a tape too tight for the raised floor: the
	// attempt is blocked but the retest phase survives.
	bars = append(bars, mkBar(nextTs(bars), 101.1, 101.7, 101.05, 101.6, 3000))
	require.Nil(t, m.Step(bars, 32))
	assert.Equal(t, PhasePullbackRetest, m.Phase())

	require.Len(t, m.Decisions(), 1)
	dec := m.Decisions()[0]
	assert.Equal(t, ReasonChoppyMarket, dec.Reason)
	assert.Equal(t, PhasePullbackRetest, dec.ResultingPhase)
}

func TestConfirm_MaxTrackingAbandons(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}

	bars = weakCross(bars, 101.3, 1300)
	require.Nil(t, m.Step(bars, 30))

	// Twelve listless bars above the pivot with no confirmation path firing.
	for i := 0; i < cfg.MaxTrackingIntervals; i++ {
		bars = append(bars, mkBar(nextTs(bars), 101.0, 101.1, 100.95, 101.05, 1000))
		require.Nil(t, m.Step(bars, len(bars)-1))
	}
	assert.Equal(t, PhaseMonitoring, m.Phase())

	require.Len(t, m.Decisions(), 1)
	dec := m.Decisions()[0]
	assert.Equal(t, DecisionAbandoned, dec.Decision)
	assert.Equal(t, ReasonMaxTracking, dec.Reason)
	assert.Equal(t, cfg.MaxTrackingIntervals, dec.IntervalsSinceBreakout)
}

func TestConfirm_ReentryQualityGate(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	require.NotNil(t, m.Step(bars, 30))

	// Quick stop-out, but the trade showed real favorable excursion first.
	m.NoteExit(&PositionRecord{ExitReason: ExitStop, IntervalsHeld: 1, MFEPct: 0.9, MAEPct: 1.0})
	require.Equal(t, PhaseMonitoring, m.Phase())

	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.0, 100.7, 100.8, 1000))
	require.Nil(t, m.Step(bars, 31))
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	sig := m.Step(bars, 32)
	require.NotNil(t, sig, "MFE/MAE 0.9 clears the 0.8 floor")
	assert.Equal(t, ReasonMomentum, sig.Reason)

	// A second re-entry attempt runs past the budget.
	m.NoteExit(&PositionRecord{ExitReason: ExitStop, IntervalsHeld: 1, MFEPct: 0.9, MAEPct: 1.0})
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.0, 100.7, 100.8, 1000))
	require.Nil(t, m.Step(bars, 33))
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3300))
	require.Nil(t, m.Step(bars, 34))

	last := m.Decisions()[len(m.Decisions())-1]
	assert.Equal(t, DecisionBlocked, last.Decision)
	assert.Equal(t, ReasonReentryExhausted, last.Reason)
}

func TestConfirm_ReentryBlockedOnPoorExcursion(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	require.NotNil(t, m.Step(bars, 30))

	// Stopped out within the window and the trade never worked: MFE/MAE 0.2.
	m.NoteExit(&PositionRecord{ExitReason: ExitTrailStop, IntervalsHeld: 1, MFEPct: 0.2, MAEPct: 1.0})

	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.0, 100.7, 100.8, 1000))
	require.Nil(t, m.Step(bars, 31))
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	require.Nil(t, m.Step(bars, 32))

	last := m.Decisions()[len(m.Decisions())-1]
	assert.Equal(t, DecisionBlocked, last.Decision)
	assert.Equal(t, ReasonReentryQuality, last.Reason)
}

func TestConfirm_SlowExitSkipsTheQualityGate(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	require.NotNil(t, m.Step(bars, 30))

	// Held well past the window: not a quick stop-out, excursions ignored.
	m.NoteExit(&PositionRecord{ExitReason: ExitStop, IntervalsHeld: 5, MFEPct: 0.1, MAEPct: 1.0})

	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.0, 100.7, 100.8, 1000))
	require.Nil(t, m.Step(bars, 31))
	bars = append(bars, mkBar(nextTs(bars), 100.9, 101.6, 100.8, 101.5, 3000))
	sig := m.Step(bars, 32)
	require.NotNil(t, sig)
}

func TestConfirm_SessionEndAbandonsOpenTracking(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	bars := historyBars(30, 0, 100, 1000)
	for i := range bars {
		require.Nil(t, m.Step(bars, i))
	}
	bars = weakCross(bars, 101.3, 1300)
	require.Nil(t, m.Step(bars, 30))

	m.AbandonSession(nextTs(bars), 31)
	require.Len(t, m.Decisions(), 1)
	assert.Equal(t, DecisionAbandoned, m.Decisions()[0].Decision)
	assert.Equal(t, ReasonSessionEnd, m.Decisions()[0].Reason)
}

func TestConfirm_SessionEndWhileMonitoringIsSilent(t *testing.T) {
	cfg := DefaultConfig()
	log := &EventLog{}
	m := NewConfirmMachine(&cfg, longPivot("TST", 101, 104), log)

	m.AbandonSession(0, 0)
	assert.Empty(t, m.Decisions())
}
