package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StopTier maps an ATR% band to an initial stop width. Tiers are matched in
// order; the first tier whose MaxATRPct is above the instrument's ATR% wins,
// the last tier is open-ended.
type StopTier struct {
	MaxATRPct    float64 `json:"max_atr_pct"`    // upper bound of the band; anything above the last bound falls into the last tier
	StopWidthPct float64 `json:"stop_width_pct"` // stop distance as % of entry price
}

// Config carries every threshold the engine uses. Nothing is hard-coded in
// the components; a value out of range fails Validate before any symbol/day
// unit is processed.
type Config struct {
	// Bar stream. One explicit interval threaded through every component.
	BarIntervalMs int64 `json:"bar_interval_ms"`

	// Breakout classifier.
	VolumeLookback      int     `json:"volume_lookback"`       // bars averaged for the volume ratio
	MomentumVolumeRatio float64 `json:"momentum_volume_ratio"` // inclusive threshold
	MomentumCandlePct   float64 `json:"momentum_candle_pct"`   // |close-open|/open, percent

	// Confirmation state machine.
	PullbackDistancePct     float64 `json:"pullback_distance_pct"`
	SustainedHoldIntervals  int     `json:"sustained_hold_intervals"`
	SustainedVolumeRatio    float64 `json:"sustained_volume_ratio"`
	SustainedBreakLevelFrac float64 `json:"sustained_break_level_frac"` // checkpoint as fraction of pivot->target1
	MinRoomToTargetPct      float64 `json:"min_room_to_target_pct"`
	ChoppyLookback          int     `json:"choppy_lookback"`
	ChoppyRangeFloorPct     float64 `json:"choppy_range_floor_pct"`
	VolumeDecayFrac         float64 `json:"volume_decay_frac"` // current ratio vs peak spike on delayed momentum
	MaxTrackingIntervals    int     `json:"max_tracking_intervals"`

	// Re-entry governance.
	MaxReentryAttempts     int     `json:"max_reentry_attempts"`
	ReentryWindowIntervals int     `json:"reentry_window_intervals"` // "stopped out quickly" window
	ReentryMinMFEMAERatio  float64 `json:"reentry_min_mfe_mae_ratio"`

	// Initial stop.
	AtrPeriod             int        `json:"atr_period"`
	StopTiers             []StopTier `json:"stop_tiers"`
	OpeningStopTightening float64    `json:"opening_stop_tightening"` // multiplier inside the opening window, 1.0 = off
	OpeningWindowMinutes  int        `json:"opening_window_minutes"`

	// Partial-profit ladder and trailing runner.
	PartialRMultiple        float64         `json:"partial_r_multiple"` // first partial trigger in R
	Partial1Fraction        decimal.Decimal `json:"partial1_fraction"`  // of original size
	Partial2Fraction        decimal.Decimal `json:"partial2_fraction"`  // of remaining size
	FallbackTargetRMultiple float64         `json:"fallback_target_r_multiple"` // second partial when no target1
	TrailActivationPct      float64         `json:"trail_activation_pct"`
	TrailPct                float64         `json:"trail_pct"`

	// Time-tier exits, boundaries in minutes since entry.
	GraceMinutes        int     `json:"grace_minutes"`
	TminMinutes         int     `json:"tmin_minutes"`
	TmidMinutes         int     `json:"tmid_minutes"`
	TmaxMinutes         int     `json:"tmax_minutes"`
	EarlyFailMAEPct     float64 `json:"early_fail_mae_pct"`      // tier A
	TierBLossPct        float64 `json:"tier_b_loss_pct"`         // tier B hard loss
	FlashPopMFEPct      float64 `json:"flash_pop_mfe_pct"`       // tier B pop-and-fade arm level
	MinProgressPct      float64 `json:"min_progress_pct"`        // tier C progress floor at Tmax
	TierCLossFracOfStop float64 `json:"tier_c_loss_frac_of_stop"`
	MomentumLostMFEPct  float64 `json:"momentum_lost_mfe_pct"`   // tier D arm level
	MomentumLostGainPct float64 `json:"momentum_lost_gain_pct"`  // tier D "collapsed back near flat"
}

// DefaultConfig returns the tuning the reports converged on. Tmax defaults to
// the short end of the tested 7..15 minute range; longer values multiplied
// average losses without creating new winners.
func DefaultConfig() Config {
	return Config{
		BarIntervalMs: 60_000, // 1m bars

		VolumeLookback:      20,
		MomentumVolumeRatio: 2.5,
		MomentumCandlePct:   0.3,

		PullbackDistancePct:     0.15,
		SustainedHoldIntervals:  1,
		SustainedVolumeRatio:    1.5,
		SustainedBreakLevelFrac: 0.5,
		MinRoomToTargetPct:      1.5,
		ChoppyLookback:          10,
		ChoppyRangeFloorPct:     0.25,
		VolumeDecayFrac:         0.6,
		MaxTrackingIntervals:    12,

		MaxReentryAttempts:     1,
		ReentryWindowIntervals: 1,
		ReentryMinMFEMAERatio:  0.8,

		AtrPeriod: 14,
		StopTiers: []StopTier{
			{MaxATRPct: 2.0, StopWidthPct: 0.7},
			{MaxATRPct: 4.0, StopWidthPct: 1.2},
			{MaxATRPct: 6.0, StopWidthPct: 1.8},
			{MaxATRPct: 100.0, StopWidthPct: 2.5},
		},
		OpeningStopTightening: 1.0,
		OpeningWindowMinutes:  30,

		PartialRMultiple:        1.0,
		Partial1Fraction:        decimal.NewFromFloat(0.5),
		Partial2Fraction:        decimal.NewFromFloat(0.5),
		FallbackTargetRMultiple: 2.0,
		TrailActivationPct:      1.0,
		TrailPct:                0.5,

		GraceMinutes:        2,
		TminMinutes:         3,
		TmidMinutes:         5,
		TmaxMinutes:         7,
		EarlyFailMAEPct:     0.5,
		TierBLossPct:        0.4,
		FlashPopMFEPct:      0.3,
		MinProgressPct:      0.10,
		TierCLossFracOfStop: 0.5,
		MomentumLostMFEPct:  1.5,
		MomentumLostGainPct: 0.2,
	}
}

// Interval returns the configured bar interval as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.BarIntervalMs) * time.Millisecond
}

// Validate fails fast on missing or inconsistent thresholds.
func (c Config) Validate() error {
	if c.BarIntervalMs <= 0 {
		return &ConfigError{Field: "bar_interval_ms", Reason: "must be positive"}
	}
	if c.VolumeLookback < 1 {
		return &ConfigError{Field: "volume_lookback", Reason: "must be at least 1"}
	}
	if c.MomentumVolumeRatio <= 0 {
		return &ConfigError{Field: "momentum_volume_ratio", Reason: "must be positive"}
	}
	if c.MomentumCandlePct <= 0 {
		return &ConfigError{Field: "momentum_candle_pct", Reason: "must be positive"}
	}
	if c.PullbackDistancePct <= 0 {
		return &ConfigError{Field: "pullback_distance_pct", Reason: "must be positive"}
	}
	if c.SustainedHoldIntervals < 1 {
		return &ConfigError{Field: "sustained_hold_intervals", Reason: "must be at least 1"}
	}
	if c.SustainedBreakLevelFrac <= 0 || c.SustainedBreakLevelFrac > 1 {
		return &ConfigError{Field: "sustained_break_level_frac", Reason: "must be in (0, 1]"}
	}
	if c.MinRoomToTargetPct <= 0 {
		return &ConfigError{Field: "min_room_to_target_pct", Reason: "must be positive"}
	}
	if c.ChoppyLookback < 2 {
		return &ConfigError{Field: "choppy_lookback", Reason: "must be at least 2"}
	}
	if c.VolumeDecayFrac <= 0 || c.VolumeDecayFrac > 1 {
		return &ConfigError{Field: "volume_decay_frac", Reason: "must be in (0, 1]"}
	}
	if c.MaxTrackingIntervals < 1 {
		return &ConfigError{Field: "max_tracking_intervals", Reason: "tracking must be bounded"}
	}
	if c.MaxReentryAttempts < 0 {
		return &ConfigError{Field: "max_reentry_attempts", Reason: "must not be negative"}
	}
	if c.ReentryWindowIntervals < 1 {
		return &ConfigError{Field: "reentry_window_intervals", Reason: "must be at least 1"}
	}
	if c.ReentryMinMFEMAERatio < 0 {
		return &ConfigError{Field: "reentry_min_mfe_mae_ratio", Reason: "must not be negative"}
	}
	if c.AtrPeriod < 1 {
		return &ConfigError{Field: "atr_period", Reason: "must be at least 1"}
	}
	if len(c.StopTiers) == 0 {
		return &ConfigError{Field: "stop_tiers", Reason: "at least one tier required"}
	}
	prev := 0.0
	for i, t := range c.StopTiers {
		if t.StopWidthPct <= 0 {
			return &ConfigError{Field: "stop_tiers", Reason: fmt.Sprintf("tier %d stop width must be positive", i)}
		}
		if t.MaxATRPct <= prev {
			return &ConfigError{Field: "stop_tiers", Reason: fmt.Sprintf("tier %d band overlaps tier %d", i, i-1)}
		}
		prev = t.MaxATRPct
	}
	if c.OpeningStopTightening <= 0 || c.OpeningStopTightening > 1 {
		return &ConfigError{Field: "opening_stop_tightening", Reason: "must be in (0, 1]"}
	}
	if c.PartialRMultiple <= 0 {
		return &ConfigError{Field: "partial_r_multiple", Reason: "must be positive"}
	}
	one := decimal.NewFromInt(1)
	if c.Partial1Fraction.LessThanOrEqual(decimal.Zero) || c.Partial1Fraction.GreaterThanOrEqual(one) {
		return &ConfigError{Field: "partial1_fraction", Reason: "must be in (0, 1)"}
	}
	if c.Partial2Fraction.LessThanOrEqual(decimal.Zero) || c.Partial2Fraction.GreaterThanOrEqual(one) {
		return &ConfigError{Field: "partial2_fraction", Reason: "must be in (0, 1)"}
	}
	if c.FallbackTargetRMultiple <= c.PartialRMultiple {
		return &ConfigError{Field: "fallback_target_r_multiple", Reason: "must be beyond the first partial trigger"}
	}
	if c.TrailActivationPct <= 0 || c.TrailPct <= 0 {
		return &ConfigError{Field: "trail_pct", Reason: "trailing thresholds must be positive"}
	}
	// Tier boundaries must not overlap: Grace < Tmin < Tmid <= Tmax.
	if c.GraceMinutes < 1 {
		return &ConfigError{Field: "grace_minutes", Reason: "must be at least 1"}
	}
	if c.TminMinutes <= c.GraceMinutes {
		return &ConfigError{Field: "tmin_minutes", Reason: "must be beyond the grace interval"}
	}
	if c.TmidMinutes <= c.TminMinutes {
		return &ConfigError{Field: "tmid_minutes", Reason: "overlaps tmin boundary"}
	}
	if c.TmaxMinutes < c.TmidMinutes {
		return &ConfigError{Field: "tmax_minutes", Reason: "overlaps tmid boundary"}
	}
	if c.EarlyFailMAEPct <= 0 || c.TierBLossPct <= 0 || c.MinProgressPct <= 0 {
		return &ConfigError{Field: "time_tiers", Reason: "tier thresholds must be positive"}
	}
	if c.TierCLossFracOfStop <= 0 || c.TierCLossFracOfStop > 1 {
		return &ConfigError{Field: "tier_c_loss_frac_of_stop", Reason: "must be in (0, 1]"}
	}
	if c.MomentumLostMFEPct <= c.MomentumLostGainPct {
		return &ConfigError{Field: "momentum_lost_mfe_pct", Reason: "arm level must exceed the collapse threshold"}
	}
	return nil
}

// Hash returns a stable digest of the config for run manifests.
func (c Config) Hash() string {
	b, _ := json.Marshal(c)
	return fmt.Sprintf("%x", sha256.Sum256(b))
}
