package engine

import (
	"strconv"

	"github.com/shopspring/decimal"
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Phase is the confirmation state for one pivot on one trading day.
type Phase int

const (
	PhaseMonitoring Phase = iota
	PhaseBreakoutDetected
	PhaseCandleClosed
	PhaseWeakTracking
	PhasePullbackRetest
	PhaseReadyToEnter
)

func (p Phase) String() string {
	switch p {
	case PhaseBreakoutDetected:
		return "BREAKOUT_DETECTED"
	case PhaseCandleClosed:
		return "CANDLE_CLOSED"
	case PhaseWeakTracking:
		return "WEAK_TRACKING"
	case PhasePullbackRetest:
		return "PULLBACK_RETEST"
	case PhaseReadyToEnter:
		return "READY_TO_ENTER"
	default:
		return "MONITORING"
	}
}

// EntrySignal tells the simulator to open a position at the closed bar.
type EntrySignal struct {
	TsMs                   int64
	Price                  decimal.Decimal
	Reason                 Reason
	Breakout               Classification
	BarIndex               int
	IntervalsSinceBreakout int
}

// ConfirmMachine decides, bar by closed bar, whether a pivot cross becomes an
// entry. Momentum crosses enter immediately; weak crosses are tracked through
// delayed momentum, pullback-retest and sustained-break paths, all bounded by
// MaxTrackingIntervals. Every candidate entry passes the same filters
// regardless of which path produced it.
//
// The machine only sees closed bars, so BREAKOUT_DETECTED and CANDLE_CLOSED
// are transient within a single Step. It is not stepped while a position is
// open; the simulator resumes it through NoteExit.
type ConfirmMachine struct {
	cfg   *Config
	pivot PivotRecord
	cls   Classifier
	log   *EventLog

	phase           Phase
	breakoutIndex   int
	intervalsSince  int
	peakVolumeRatio float64
	sustainedCount  int
	checkpoint      decimal.Decimal

	entries  int
	lastExit *PositionRecord

	decisions []DecisionRecord
}

func NewConfirmMachine(cfg *Config, pivot PivotRecord, log *EventLog) *ConfirmMachine {
	m := &ConfirmMachine{
		cfg:   cfg,
		pivot: pivot,
		cls:   NewClassifier(cfg),
		log:   log,
		phase: PhaseMonitoring,
	}
	// Sustained-break checkpoint sits a fraction of the way from the pivot to
	// target1. Without a target it degenerates to the pivot itself.
	m.checkpoint = pivot.PivotPrice
	if pivot.HasTarget() {
		frac := decimal.NewFromFloat(cfg.SustainedBreakLevelFrac)
		m.checkpoint = pivot.PivotPrice.Add(frac.Mul(pivot.Target1.Sub(pivot.PivotPrice)))
	}
	return m
}

func (m *ConfirmMachine) Phase() Phase { return m.phase }

// Decisions returns every entry attempt outcome recorded so far.
func (m *ConfirmMachine) Decisions() []DecisionRecord { return m.decisions }

// Step consumes the closed bar at index i. A non-nil signal means the
// simulator should enter at that bar's close.
func (m *ConfirmMachine) Step(bars []Bar, i int) *EntrySignal {
	switch m.phase {
	case PhaseMonitoring:
		return m.stepMonitoring(bars, i)
	case PhaseWeakTracking, PhasePullbackRetest:
		return m.stepTracking(bars, i)
	}
	return nil
}

func (m *ConfirmMachine) stepMonitoring(bars []Bar, i int) *EntrySignal {
	if i == 0 || !m.crossed(bars[i-1].Close, bars[i].Close) {
		return nil
	}
	m.phase = PhaseBreakoutDetected
	m.breakoutIndex = i
	m.intervalsSince = 0
	m.sustainedCount = 0

	cl := m.cls.Classify(bars, i)
	m.peakVolumeRatio = cl.VolumeRatio
	m.log.Append(Event{TsMs: bars[i].TsMs, Type: EventBreakoutDetected, Symbol: m.pivot.Symbol, Details: map[string]string{
		"pivot":        m.pivot.PivotPrice.String(),
		"close":        bars[i].Close.String(),
		"type":         cl.Type.String(),
		"volume_ratio": formatFloat(cl.VolumeRatio),
	}})

	// The detection bar is already closed, so the candle-close confirmation
	// happens in the same step.
	m.phase = PhaseCandleClosed
	if cl.Type == BreakoutMomentum {
		return m.tryEnter(bars, i, ReasonMomentum, cl, PhaseWeakTracking)
	}
	m.phase = PhaseWeakTracking
	return nil
}

func (m *ConfirmMachine) stepTracking(bars []Bar, i int) *EntrySignal {
	bar := bars[i]
	m.intervalsSince++

	cl := m.cls.Classify(bars, i)
	if cl.VolumeRatio > m.peakVolumeRatio {
		m.peakVolumeRatio = cl.VolumeRatio
	}

	if sig := m.evalTracking(bars, i, cl); sig != nil {
		return sig
	}

	if m.phase != PhaseMonitoring && m.intervalsSince >= m.cfg.MaxTrackingIntervals {
		m.abandon(bar.TsMs, i, ReasonMaxTracking, cl)
	}
	return nil
}

func (m *ConfirmMachine) evalTracking(bars []Bar, i int, cl Classification) *EntrySignal {
	bar := bars[i]
	if !m.beyondPivot(bar.Close) {
		m.sustainedCount = 0
		if m.pullbackZone(bar.Close) {
			m.phase = PhasePullbackRetest
			return nil
		}
		// Broke back down past the retest zone. Drop the cross; a fresh
		// cross re-arms detection from MONITORING.
		m.reset()
		return nil
	}

	wasPullback := m.phase == PhasePullbackRetest
	m.phase = PhaseWeakTracking

	if cl.Type == BreakoutMomentum {
		if wasPullback {
			return m.tryEnter(bars, i, ReasonPullbackBounce, cl, PhasePullbackRetest)
		}
		// Delayed momentum must not ride a dead volume spike.
		if cl.VolumeRatio < m.cfg.VolumeDecayFrac*m.peakVolumeRatio {
			m.block(bar.TsMs, i, ReasonVolumeDecay, cl, m.phase)
		} else {
			return m.tryEnter(bars, i, ReasonDelayedMomentum, cl, PhaseWeakTracking)
		}
	}

	if m.beyondCheckpoint(bar.Close) && cl.VolumeRatio >= m.cfg.SustainedVolumeRatio {
		m.sustainedCount++
		if m.sustainedCount >= m.cfg.SustainedHoldIntervals {
			m.phase = PhaseReadyToEnter
			return m.tryEnter(bars, i, ReasonSustainedBreak, cl, PhaseWeakTracking)
		}
	} else {
		m.sustainedCount = 0
	}
	return nil
}

// tryEnter runs the uniform filters and the re-entry governance, then either
// emits the signal or records why it was blocked. fallback is the tracking
// phase to resume when a choppy tape blocks the attempt.
func (m *ConfirmMachine) tryEnter(bars []Bar, i int, reason Reason, cl Classification, fallback Phase) *EntrySignal {
	bar := bars[i]

	// Room to target, measured live from this close. The scanner's stale
	// risk/reward plays no part here. A failed room check kills the cross
	// outright: the remaining move can only shrink further.
	if m.pivot.HasTarget() && m.roomToTargetPct(bar.Close) < m.cfg.MinRoomToTargetPct {
		m.block(bar.TsMs, i, ReasonRoomToTarget, cl, PhaseMonitoring)
		m.reset()
		return nil
	}

	// Choppy tape blocks the attempt but tracking continues in whatever
	// phase produced it.
	if rng, err := RangePct(bars, i, m.cfg.ChoppyLookback); err == nil && rng < m.cfg.ChoppyRangeFloorPct {
		m.phase = fallback
		m.block(bar.TsMs, i, ReasonChoppyMarket, cl, m.phase)
		return nil
	}

	if m.entries > 0 {
		if m.entries > m.cfg.MaxReentryAttempts {
			m.block(bar.TsMs, i, ReasonReentryExhausted, cl, PhaseMonitoring)
			m.reset()
			return nil
		}
		if m.lastExit != nil && m.quickStopOut(m.lastExit) && !m.retryQualityOK(m.lastExit) {
			m.block(bar.TsMs, i, ReasonReentryQuality, cl, PhaseMonitoring)
			m.reset()
			return nil
		}
	}

	m.entries++
	m.phase = PhaseReadyToEnter
	m.decisions = append(m.decisions, DecisionRecord{
		Symbol:                 m.pivot.Symbol,
		TsMs:                   bar.TsMs,
		Decision:               DecisionEntered,
		Reason:                 reason,
		BreakoutType:           cl.Type,
		VolumeRatio:            cl.VolumeRatio,
		ResultingPhase:         m.phase,
		BarIndex:               i,
		IntervalsSinceBreakout: m.intervalsSince,
	})
	return &EntrySignal{
		TsMs:                   bar.TsMs,
		Price:                  bar.Close,
		Reason:                 reason,
		Breakout:               cl,
		BarIndex:               i,
		IntervalsSinceBreakout: m.intervalsSince,
	}
}

// NoteExit hands the closed position back to the machine so re-entry
// governance can judge the next attempt.
func (m *ConfirmMachine) NoteExit(rec *PositionRecord) {
	m.lastExit = rec
	m.reset()
}

// AbandonSession records an unresolved cross at the end of the stream.
func (m *ConfirmMachine) AbandonSession(tsMs int64, barIndex int) {
	if m.phase == PhaseMonitoring {
		return
	}
	m.abandon(tsMs, barIndex, ReasonSessionEnd, Classification{Type: BreakoutWeak})
}

// quickStopOut reports whether the position was stopped out within the
// re-entry window.
func (m *ConfirmMachine) quickStopOut(rec *PositionRecord) bool {
	if rec.ExitReason != ExitStop && rec.ExitReason != ExitTrailStop {
		return false
	}
	return rec.IntervalsHeld <= m.cfg.ReentryWindowIntervals
}

// retryQualityOK requires the stopped-out attempt to have shown real
// favorable movement relative to its adverse movement. An attempt that
// never moved in favor at all is a dead setup, not a near miss.
func (m *ConfirmMachine) retryQualityOK(rec *PositionRecord) bool {
	if rec.MFEPct <= 0 {
		return false
	}
	if rec.MAEPct <= 0 {
		return true
	}
	return rec.MFEPct/rec.MAEPct >= m.cfg.ReentryMinMFEMAERatio
}

func (m *ConfirmMachine) abandon(tsMs int64, barIndex int, reason Reason, cl Classification) {
	m.decisions = append(m.decisions, DecisionRecord{
		Symbol:                 m.pivot.Symbol,
		TsMs:                   tsMs,
		Decision:               DecisionAbandoned,
		Reason:                 reason,
		BreakoutType:           cl.Type,
		VolumeRatio:            cl.VolumeRatio,
		ResultingPhase:         PhaseMonitoring,
		BarIndex:               barIndex,
		IntervalsSinceBreakout: m.intervalsSince,
	})
	m.log.Append(Event{TsMs: tsMs, Type: EventBreakoutAbandoned, Symbol: m.pivot.Symbol, Details: map[string]string{
		"reason": reason.String(),
	}})
	m.reset()
}

func (m *ConfirmMachine) block(tsMs int64, barIndex int, reason Reason, cl Classification, resulting Phase) {
	m.decisions = append(m.decisions, DecisionRecord{
		Symbol:                 m.pivot.Symbol,
		TsMs:                   tsMs,
		Decision:               DecisionBlocked,
		Reason:                 reason,
		BreakoutType:           cl.Type,
		VolumeRatio:            cl.VolumeRatio,
		ResultingPhase:         resulting,
		BarIndex:               barIndex,
		IntervalsSinceBreakout: m.intervalsSince,
	})
	m.log.Append(Event{TsMs: tsMs, Type: EventEntryBlocked, Symbol: m.pivot.Symbol, Details: map[string]string{
		"reason": reason.String(),
	}})
}

func (m *ConfirmMachine) reset() {
	m.phase = PhaseMonitoring
	m.intervalsSince = 0
	m.sustainedCount = 0
	m.peakVolumeRatio = 0
}

func (m *ConfirmMachine) crossed(prevClose, close decimal.Decimal) bool {
	if m.pivot.Side == SideLong {
		return prevClose.LessThanOrEqual(m.pivot.PivotPrice) && close.GreaterThan(m.pivot.PivotPrice)
	}
	return prevClose.GreaterThanOrEqual(m.pivot.PivotPrice) && close.LessThan(m.pivot.PivotPrice)
}

func (m *ConfirmMachine) beyondPivot(close decimal.Decimal) bool {
	if m.pivot.Side == SideLong {
		return close.GreaterThan(m.pivot.PivotPrice)
	}
	return close.LessThan(m.pivot.PivotPrice)
}

func (m *ConfirmMachine) beyondCheckpoint(close decimal.Decimal) bool {
	if m.pivot.Side == SideLong {
		return close.GreaterThanOrEqual(m.checkpoint)
	}
	return close.LessThanOrEqual(m.checkpoint)
}

// pullbackZone reports whether the close sits within the retest band around
// the pivot on the non-break side.
func (m *ConfirmMachine) pullbackZone(close decimal.Decimal) bool {
	dist, _ := close.Sub(m.pivot.PivotPrice).Abs().Div(m.pivot.PivotPrice).Mul(decimal.NewFromInt(100)).Float64()
	return dist <= m.cfg.PullbackDistancePct
}

// roomToTargetPct measures the live distance from the close to target1.
func (m *ConfirmMachine) roomToTargetPct(close decimal.Decimal) float64 {
	room, _ := m.pivot.Target1.Sub(close).Div(close).Mul(decimal.NewFromInt(100)).Float64()
	if m.pivot.Side == SideShort {
		room = -room
	}
	return room
}
