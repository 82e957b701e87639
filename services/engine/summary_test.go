package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pnlRecord(pnl float64, reason ExitReason) PositionRecord {
	return PositionRecord{RealizedPnLPct: d(pnl), ExitReason: reason}
}

func TestSummarize_Statistics(t *testing.T) {
	s := Summarize([]PositionRecord{
		pnlRecord(1.0, ExitTarget),
		pnlRecord(-0.5, ExitStop),
		pnlRecord(2.0, ExitTrailStop),
		pnlRecord(-1.0, ExitStop),
	})

	assert.Equal(t, 4, s.Positions)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9)
	assert.InDelta(t, 1.5, s.AvgWinPct, 1e-9)
	assert.InDelta(t, -0.75, s.AvgLossPct, 1e-9)
	assert.InDelta(t, 0.375, s.ExpectancyPct, 1e-9)
	assert.InDelta(t, 1.376893, s.StdDevPct, 1e-5)
	assert.InDelta(t, 2.0, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 1.0, s.MaxDrawdownPct, 1e-9, "peak 2.5 after trade three, trough 1.5")

	assert.Equal(t, 2, s.ExitCounts[ExitStop.String()])
	assert.Equal(t, 1, s.ExitCounts[ExitTarget.String()])
	assert.Equal(t, 1, s.ExitCounts[ExitTrailStop.String()])
}

func TestSummarize_NoLossesLeavesProfitFactorZero(t *testing.T) {
	s := Summarize([]PositionRecord{pnlRecord(1.0, ExitTarget), pnlRecord(0.5, ExitEOD)})
	assert.Equal(t, 0.0, s.ProfitFactor)
	assert.Equal(t, 0, s.Losses)
	assert.Equal(t, 0.0, s.MaxDrawdownPct)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.Positions)
	assert.NotNil(t, s.ExitCounts)
}
