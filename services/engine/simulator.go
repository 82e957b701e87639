package engine

import (
	"fmt"

	"go.uber.org/zap"
)

// Unit is one symbol/day simulation input: a validated pivot and the day's
// bar stream at the configured interval.
type Unit struct {
	Symbol string
	Day    string
	Pivot  PivotRecord
	Bars   []Bar
}

// UnitResult is everything one unit produced.
type UnitResult struct {
	Symbol    string           `json:"symbol"`
	Day       string           `json:"day"`
	Decisions []DecisionRecord `json:"decisions"`
	Positions []PositionRecord `json:"positions"`
	Events    []Event          `json:"events"`
}

// Simulator runs units deterministically: same bars, same pivot, same config,
// same output. It holds no per-unit state, so one instance serves many
// workers.
type Simulator struct {
	cfg    *Config
	logger *zap.Logger
}

func NewSimulator(cfg *Config, logger *zap.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{cfg: cfg, logger: logger}, nil
}

// RunUnit walks the unit's bars through the confirmation machine and, when a
// signal fires, hands control to a position lifecycle until it closes. The
// machine is paused while a position is open and resumes on the bar after the
// exit. Exits are never evaluated on the entry bar itself.
func (s *Simulator) RunUnit(unit Unit) (*UnitResult, error) {
	if err := unit.Pivot.Validate(); err != nil {
		return nil, fmt.Errorf("unit %s/%s: %w", unit.Symbol, unit.Day, err)
	}
	if len(unit.Bars) == 0 {
		return nil, fmt.Errorf("unit %s/%s: empty bar stream", unit.Symbol, unit.Day)
	}
	if err := ValidateStream(unit.Symbol, unit.Bars, s.cfg.BarIntervalMs); err != nil {
		return nil, err
	}

	log := &EventLog{}
	machine := NewConfirmMachine(s.cfg, unit.Pivot, log)
	var life *Lifecycle
	var positions []PositionRecord

	bars := unit.Bars
	sessionOpen := bars[0].TsMs
	openingWindowMs := int64(s.cfg.OpeningWindowMinutes) * 60_000
	last := len(bars) - 1

	for i := 0; i <= last; i++ {
		if life != nil {
			if rec := life.Step(bars[i], i == last); rec != nil {
				positions = append(positions, *rec)
				machine.NoteExit(rec)
				life = nil
			}
			continue
		}

		sig := machine.Step(bars, i)
		if sig == nil {
			continue
		}

		atrPct, err := ATRPct(bars, i, s.cfg.AtrPeriod)
		atrOK := err == nil
		inOpening := sig.TsMs-sessionOpen < openingWindowMs
		life = OpenPosition(s.cfg, unit.Pivot, sig.Price, sig.TsMs, atrPct, atrOK, inOpening, log)

		if i == last {
			// Entered on the final bar; flatten immediately.
			rec := life.ForceClose(bars[i].TsMs, bars[i].Close)
			positions = append(positions, *rec)
			machine.NoteExit(rec)
			life = nil
		}
	}

	machine.AbandonSession(bars[last].TsMs, last)

	s.logger.Debug("unit complete",
		zap.String("symbol", unit.Symbol),
		zap.String("day", unit.Day),
		zap.Int("decisions", len(machine.Decisions())),
		zap.Int("positions", len(positions)),
	)

	return &UnitResult{
		Symbol:    unit.Symbol,
		Day:       unit.Day,
		Decisions: machine.Decisions(),
		Positions: positions,
		Events:    log.Events,
	}, nil
}
