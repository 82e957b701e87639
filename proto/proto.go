package proto

import "context"

// Wire DTOs for the simulation service. Prices travel as strings so no
// precision is lost crossing the API boundary.

type SimulateRequest struct {
	Day     string   `json:"day"`     // YYYY-MM-DD, UTC session
	Symbols []string `json:"symbols"` // empty means every pivot scanned that day
	Workers int      `json:"workers"`
}

type PivotSpec struct {
	Symbol              string `json:"symbol"`
	Side                string `json:"side"`
	PivotPrice          string `json:"pivot_price"`
	Target1             string `json:"target1"`
	Target2             string `json:"target2"`
	SupportOrResistance string `json:"support_or_resistance"`
	ScannerRiskReward   string `json:"scanner_risk_reward"`
}

type PartialFill struct {
	TimeMs   int64  `json:"time_ms"`
	Price    string `json:"price"`
	Fraction string `json:"fraction"`
	Reason   string `json:"reason"`
}

type PositionResult struct {
	Symbol         string        `json:"symbol"`
	Side           string        `json:"side"`
	EntryTimeMs    int64         `json:"entry_time_ms"`
	EntryPrice     string        `json:"entry_price"`
	InitialStop    string        `json:"initial_stop"`
	StopTierPct    float64       `json:"stop_tier_pct"`
	Partials       []PartialFill `json:"partials"`
	ExitTimeMs     int64         `json:"exit_time_ms"`
	ExitPrice      string        `json:"exit_price"`
	ExitReason     string        `json:"exit_reason"`
	RealizedPnLPct string        `json:"realized_pnl_pct"`
	MFEPct         float64       `json:"mfe_pct"`
	MAEPct         float64       `json:"mae_pct"`
	IntervalsHeld  int           `json:"intervals_held"`
}

type DecisionResult struct {
	Symbol                 string  `json:"symbol"`
	TimeMs                 int64   `json:"time_ms"`
	Decision               string  `json:"decision"`
	Reason                 string  `json:"reason"`
	BreakoutType           string  `json:"breakout_type"`
	VolumeRatio            float64 `json:"volume_ratio"`
	ResultingPhase         string  `json:"resulting_phase"`
	IntervalsSinceBreakout int     `json:"intervals_since_breakout"`
}

type UnitResult struct {
	Symbol    string           `json:"symbol"`
	Day       string           `json:"day"`
	Decisions []DecisionResult `json:"decisions"`
	Positions []PositionResult `json:"positions"`
}

type UnitFailure struct {
	Symbol string `json:"symbol"`
	Day    string `json:"day"`
	Error  string `json:"error"`
}

type RunSummary struct {
	Positions      int            `json:"positions"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	WinRate        float64        `json:"win_rate"`
	AvgWinPct      float64        `json:"avg_win_pct"`
	AvgLossPct     float64        `json:"avg_loss_pct"`
	ExpectancyPct  float64        `json:"expectancy_pct"`
	StdDevPct      float64        `json:"std_dev_pct"`
	ProfitFactor   float64        `json:"profit_factor"`
	MaxDrawdownPct float64        `json:"max_drawdown_pct"`
	ExitCounts     map[string]int `json:"exit_counts"`
}

type RunManifest struct {
	JobID      string `json:"job_id"`
	ConfigHash string `json:"config_hash"`
	Version    string `json:"engine_version"`
	CreatedAt  int64  `json:"created_at"`
	Units      int    `json:"units"`
	Interval   string `json:"interval"`
	Workers    int    `json:"workers"`
}

type SimulateResponse struct {
	JobID           string        `json:"job_id"`
	ExecutionTimeMs int64         `json:"execution_time_ms"`
	Manifest        *RunManifest  `json:"manifest"`
	Summary         *RunSummary   `json:"summary"`
	Units           []*UnitResult `json:"units"`
	Failures        []UnitFailure `json:"failures"`
}

// gRPC server interface stub

type UnimplementedBreakoutServiceServer struct{}

func RegisterBreakoutServiceServer(_ any, _ BreakoutServiceServer) {}

type BreakoutServiceServer interface {
	ExecuteSimulation(context.Context, *SimulateRequest) (*SimulateResponse, error)
}
