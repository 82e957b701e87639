package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the trade direction for a pivot.
type Side int

const (
	SideLong Side = iota
	SideShort
)

func (s Side) String() string {
	if s == SideShort {
		return "SHORT"
	}
	return "LONG"
}

// PivotRecord is supplied once per symbol per day by the external scanner
// and is read-only to the engine. ScannerRiskReward is carried through for
// reporting but never gates an entry; room-to-target is always recomputed
// from live price against Target1.
type PivotRecord struct {
	Symbol              string
	Side                Side
	PivotPrice          decimal.Decimal
	Target1             decimal.Decimal
	Target2             decimal.Decimal
	SupportOrResistance decimal.Decimal
	ScannerRiskReward   float64
}

// HasTarget reports whether the scanner supplied a first target.
func (p PivotRecord) HasTarget() bool { return p.Target1.IsPositive() }

// Validate rejects records whose prices the engine cannot trade against.
// ScannerRiskReward is deliberately not checked here.
func (p PivotRecord) Validate() error {
	if p.Symbol == "" {
		return &InvalidPivotError{Symbol: p.Symbol, Reason: "empty symbol"}
	}
	if !p.PivotPrice.IsPositive() {
		return &InvalidPivotError{Symbol: p.Symbol, Reason: "pivot price must be positive"}
	}
	if p.HasTarget() {
		if p.Side == SideLong && p.Target1.LessThanOrEqual(p.PivotPrice) {
			return &InvalidPivotError{Symbol: p.Symbol, Reason: fmt.Sprintf("long target1 %s not above pivot %s", p.Target1, p.PivotPrice)}
		}
		if p.Side == SideShort && p.Target1.GreaterThanOrEqual(p.PivotPrice) {
			return &InvalidPivotError{Symbol: p.Symbol, Reason: fmt.Sprintf("short target1 %s not below pivot %s", p.Target1, p.PivotPrice)}
		}
	}
	return nil
}
