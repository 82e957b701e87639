package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietUnit(symbol string) Unit {
	return Unit{
		Symbol: symbol,
		Day:    "2025-06-02",
		Pivot:  longPivot(symbol, 101, 104),
		Bars:   historyBars(30, 0, 100, 1000),
	}
}

func TestRunner_CollectsResultsAndFailures(t *testing.T) {
	cfg := DefaultConfig()
	r, err := NewRunner(&cfg, 2, nil)
	require.NoError(t, err)

	broken := quietUnit("BAD")
	broken.Bars = append(broken.Bars, mkBar(nextTs(broken.Bars)+minuteMs, 100, 100.6, 99.4, 100.05, 1000))

	out, err := r.Run(context.Background(), []Unit{quietUnit("AAA"), broken, quietUnit("BBB")})
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.Equal(t, "AAA", out.Results[0].Symbol, "result order follows unit order")
	assert.Equal(t, "BBB", out.Results[1].Symbol)

	require.Len(t, out.Failures, 1)
	assert.Equal(t, "BAD", out.Failures[0].Symbol)

	assert.NotEmpty(t, out.Manifest.JobID)
	assert.Equal(t, cfg.Hash(), out.Manifest.ConfigHash)
	assert.Equal(t, 3, out.Manifest.Units)
	assert.Equal(t, 2, out.Manifest.Workers)
	assert.Equal(t, 0, out.Summary.Positions)
}

func TestRunner_CancelledContext(t *testing.T) {
	cfg := DefaultConfig()
	r, err := NewRunner(&cfg, 1, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := r.Run(ctx, []Unit{quietUnit("AAA"), quietUnit("BBB")})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)
}
