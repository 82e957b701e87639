package engine

import "github.com/shopspring/decimal"

// Closed tagged enums for every outcome the engine reports. Callers branch
// on the codes; human-readable text lives only in String().

// EventType tags entries in the per-unit event log.
type EventType int

const (
	EventBreakoutDetected EventType = iota
	EventEntry
	EventEntryBlocked
	EventBreakoutAbandoned
	EventPartialFill
	EventStopMoved
	EventTrailActivated
	EventExit
)

// Event is one timestamped occurrence in a symbol/day unit.
type Event struct {
	TsMs    int64
	Type    EventType
	Symbol  string
	Details map[string]string
}

// EventLog collects events in bar order.
type EventLog struct {
	Events []Event
}

func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }

// Decision is the outcome of one entry attempt.
type Decision int

const (
	DecisionEntered Decision = iota
	DecisionBlocked
	DecisionAbandoned
)

func (d Decision) String() string {
	switch d {
	case DecisionEntered:
		return "entered"
	case DecisionBlocked:
		return "blocked"
	default:
		return "abandoned"
	}
}

// Reason explains a decision.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonMomentum
	ReasonDelayedMomentum
	ReasonPullbackBounce
	ReasonSustainedBreak
	ReasonRoomToTarget
	ReasonChoppyMarket
	ReasonVolumeDecay
	ReasonMaxTracking
	ReasonSessionEnd
	ReasonReentryExhausted
	ReasonReentryQuality
)

func (r Reason) String() string {
	switch r {
	case ReasonMomentum:
		return "momentum_breakout"
	case ReasonDelayedMomentum:
		return "delayed_momentum"
	case ReasonPullbackBounce:
		return "pullback_bounce"
	case ReasonSustainedBreak:
		return "sustained_break"
	case ReasonRoomToTarget:
		return "room_to_target_below_min"
	case ReasonChoppyMarket:
		return "choppy_market"
	case ReasonVolumeDecay:
		return "volume_spike_decayed"
	case ReasonMaxTracking:
		return "max_tracking_intervals"
	case ReasonSessionEnd:
		return "session_end"
	case ReasonReentryExhausted:
		return "reentry_attempts_exhausted"
	case ReasonReentryQuality:
		return "reentry_quality_below_min"
	default:
		return "none"
	}
}

// DecisionRecord is the per-entry-attempt output consumed by reporting.
// IntervalsSinceBreakout is an elapsed count, kept separate from the
// absolute bar index; the two are never derived from each other.
type DecisionRecord struct {
	Symbol                 string
	TsMs                   int64
	Decision               Decision
	Reason                 Reason
	BreakoutType           BreakoutType
	VolumeRatio            float64
	ResultingPhase         Phase
	BarIndex               int
	IntervalsSinceBreakout int
}

// ExitReason closes a position record.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitStop
	ExitTarget
	ExitTimeTierA
	ExitTimeTierB
	ExitTimeTierC
	ExitTimeTierD
	ExitTrailStop
	ExitEOD
)

func (r ExitReason) String() string {
	switch r {
	case ExitStop:
		return "STOP"
	case ExitTarget:
		return "TARGET"
	case ExitTimeTierA:
		return "TIME_TIER_A"
	case ExitTimeTierB:
		return "TIME_TIER_B"
	case ExitTimeTierC:
		return "TIME_TIER_C"
	case ExitTimeTierD:
		return "TIME_TIER_D"
	case ExitTrailStop:
		return "TRAIL_STOP"
	case ExitEOD:
		return "EOD"
	default:
		return "OPEN"
	}
}

// PartialReason tags a rung of the partial-profit ladder.
type PartialReason int

const (
	PartialOneR PartialReason = iota
	PartialTarget
)

func (r PartialReason) String() string {
	if r == PartialTarget {
		return "target"
	}
	return "one_r"
}

// PartialFill records one partial exit. Fraction is of original size.
type PartialFill struct {
	TsMs     int64
	Price    decimal.Decimal
	Fraction decimal.Decimal
	Reason   PartialReason
}

// PositionRecord is the per-position lifecycle output.
type PositionRecord struct {
	Symbol         string
	Side           Side
	EntryPrice     decimal.Decimal
	EntryTsMs      int64
	InitialStop    decimal.Decimal
	StopTierPct    float64 // stop width tier applied, % of entry
	Partials       []PartialFill
	ExitPrice      decimal.Decimal
	ExitTsMs       int64
	ExitReason     ExitReason
	RealizedPnLPct decimal.Decimal // size-weighted, % of entry
	MFEPct         float64
	MAEPct         float64
	IntervalsHeld  int
}
