package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Version is stamped into every run manifest.
const Version = "1.0.0"

// RunManifest identifies a batch run. ConfigHash pins the exact tuning so
// two runs with the same hash over the same units are comparable.
type RunManifest struct {
	JobID      string    `json:"job_id"`
	ConfigHash string    `json:"config_hash"`
	Version    string    `json:"engine_version"`
	CreatedAt  time.Time `json:"created_at"`
	Units      int       `json:"units"`
	Interval   string    `json:"interval"`
	Workers    int       `json:"workers"`
}

// RunResult is the output of a batch run. Results keep the input unit order
// regardless of worker scheduling; failed units appear in Failures instead.
type RunResult struct {
	Manifest RunManifest   `json:"manifest"`
	Results  []*UnitResult `json:"results"`
	Failures []UnitFailure `json:"failures"`
	Summary  Summary       `json:"summary"`
}

// Runner fans units out over a fixed worker pool. One bad unit never takes
// the batch down; its failure is recorded and the rest keep running.
type Runner struct {
	cfg     *Config
	sim     *Simulator
	workers int
	logger  *zap.Logger
}

func NewRunner(cfg *Config, workers int, logger *zap.Logger) (*Runner, error) {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sim, err := NewSimulator(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, sim: sim, workers: workers, logger: logger}, nil
}

// Run executes every unit and aggregates the batch summary. Cancelling the
// context stops workers between units; units already in flight finish.
func (r *Runner) Run(ctx context.Context, units []Unit) (*RunResult, error) {
	manifest := RunManifest{
		JobID:      uuid.NewString(),
		ConfigHash: r.cfg.Hash(),
		Version:    Version,
		CreatedAt:  time.Now().UTC(),
		Units:      len(units),
		Interval:   r.cfg.Interval().String(),
		Workers:    r.workers,
	}
	r.logger.Info("run started",
		zap.String("job_id", manifest.JobID),
		zap.String("config_hash", manifest.ConfigHash),
		zap.Int("units", len(units)),
		zap.Int("workers", r.workers),
	)

	results := make([]*UnitResult, len(units))
	var mu sync.Mutex
	var failures []UnitFailure

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				unit := units[idx]
				res, err := r.sim.RunUnit(unit)
				if err != nil {
					mu.Lock()
					failures = append(failures, UnitFailure{Symbol: unit.Symbol, Day: unit.Day, Err: err.Error()})
					mu.Unlock()
					r.logger.Warn("unit failed",
						zap.String("symbol", unit.Symbol),
						zap.String("day", unit.Day),
						zap.Error(err),
					)
					continue
				}
				results[idx] = res
			}
		}()
	}

dispatch:
	for idx := range units {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		r.logger.Warn("run cancelled", zap.String("job_id", manifest.JobID), zap.Error(err))
		return nil, err
	}

	out := &RunResult{Manifest: manifest, Failures: failures}
	var positions []PositionRecord
	for _, res := range results {
		if res == nil {
			continue
		}
		out.Results = append(out.Results, res)
		positions = append(positions, res.Positions...)
	}
	out.Summary = Summarize(positions)

	r.logger.Info("run complete",
		zap.String("job_id", manifest.JobID),
		zap.Int("completed", len(out.Results)),
		zap.Int("failed", len(failures)),
		zap.Int("positions", len(positions)),
	)
	return out, nil
}
