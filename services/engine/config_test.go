package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate_TierBoundaryOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TminMinutes = cfg.GraceMinutes // grace must end before tmin
	err := cfg.Validate()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "tmin_minutes", cfgErr.Field)

	cfg = DefaultConfig()
	cfg.TmaxMinutes = cfg.TmidMinutes - 1
	err = cfg.Validate()
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "tmax_minutes", cfgErr.Field)
}

func TestConfigValidate_StopTiersMustAscend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopTiers = []StopTier{
		{MaxATRPct: 4.0, StopWidthPct: 0.7},
		{MaxATRPct: 2.0, StopWidthPct: 1.2},
	}
	err := cfg.Validate()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "stop_tiers", cfgErr.Field)
}

func TestConfigValidate_UnboundedTrackingRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTrackingIntervals = 0
	err := cfg.Validate()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "max_tracking_intervals", cfgErr.Field)
}

func TestConfigHash_StableAndSensitive(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	assert.Equal(t, a.Hash(), b.Hash())

	b.TrailPct = 0.75
	assert.NotEqual(t, a.Hash(), b.Hash())
}
