package engine

import (
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates closed positions across a run. All figures are in
// percent of entry price, size-weighted the way RealizedPnLPct is.
type Summary struct {
	Positions      int     `json:"positions"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"`
	AvgWinPct      float64 `json:"avg_win_pct"`
	AvgLossPct     float64 `json:"avg_loss_pct"`
	ExpectancyPct  float64 `json:"expectancy_pct"`
	StdDevPct      float64 `json:"std_dev_pct"`
	ProfitFactor   float64 `json:"profit_factor"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`

	ExitCounts map[string]int `json:"exit_counts"`
}

// Summarize folds closed positions into run statistics. Positions are
// assumed to be independent trades of equal original size.
func Summarize(positions []PositionRecord) Summary {
	s := Summary{ExitCounts: map[string]int{}}
	if len(positions) == 0 {
		return s
	}

	returns := make([]float64, 0, len(positions))
	var grossWin, grossLoss float64
	var wins, losses []float64
	for _, p := range positions {
		pnl, _ := p.RealizedPnLPct.Float64()
		returns = append(returns, pnl)
		s.ExitCounts[p.ExitReason.String()]++
		if pnl > 0 {
			wins = append(wins, pnl)
			grossWin += pnl
		} else if pnl < 0 {
			losses = append(losses, pnl)
			grossLoss += -pnl
		}
	}

	s.Positions = len(positions)
	s.Wins = len(wins)
	s.Losses = len(losses)
	s.WinRate = float64(s.Wins) / float64(s.Positions)
	s.ExpectancyPct = stat.Mean(returns, nil)
	if len(returns) > 1 {
		s.StdDevPct = stat.StdDev(returns, nil)
	}
	if len(wins) > 0 {
		s.AvgWinPct = stat.Mean(wins, nil)
	}
	if len(losses) > 0 {
		s.AvgLossPct = stat.Mean(losses, nil)
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	}
	s.MaxDrawdownPct = maxDrawdown(returns)
	return s
}

// maxDrawdown walks the cumulative return curve in trade order and returns
// the deepest peak-to-trough drop as a positive number.
func maxDrawdown(returns []float64) float64 {
	var equity, peak, dd float64
	for _, r := range returns {
		equity += r
		if equity > peak {
			peak = equity
		}
		if d := peak - equity; d > dd {
			dd = d
		}
	}
	return dd
}
