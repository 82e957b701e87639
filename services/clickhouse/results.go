package clickhouse

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/karthikjanagiraman/DayTrader-sub004/services/engine"
)

// positionRow is the JSONEachRow shape of one closed position.
type positionRow struct {
	JobID          string  `json:"job_id"`
	Symbol         string  `json:"symbol"`
	Day            string  `json:"day"`
	Side           string  `json:"side"`
	EntryPrice     string  `json:"entry_price"`
	EntryTimeMs    int64   `json:"entry_time_ms"`
	InitialStop    string  `json:"initial_stop"`
	StopTierPct    float64 `json:"stop_tier_pct"`
	PartialFills   int     `json:"partial_fills"`
	ExitPrice      string  `json:"exit_price"`
	ExitTimeMs     int64   `json:"exit_time_ms"`
	ExitReason     string  `json:"exit_reason"`
	RealizedPnLPct string  `json:"realized_pnl_pct"`
	MFEPct         float64 `json:"mfe_pct"`
	MAEPct         float64 `json:"mae_pct"`
	IntervalsHeld  int     `json:"intervals_held"`
}

// decisionRow is the JSONEachRow shape of one entry-attempt decision.
type decisionRow struct {
	JobID                  string  `json:"job_id"`
	Symbol                 string  `json:"symbol"`
	Day                    string  `json:"day"`
	TimeMs                 int64   `json:"time_ms"`
	Decision               string  `json:"decision"`
	Reason                 string  `json:"reason"`
	BreakoutType           string  `json:"breakout_type"`
	VolumeRatio            float64 `json:"volume_ratio"`
	ResultingPhase         string  `json:"resulting_phase"`
	IntervalsSinceBreakout int     `json:"intervals_since_breakout"`
}

// ResultsWriter pushes run output to ClickHouse over HTTP as gzipped
// JSONEachRow batches. Rows buffer until batchSize and flush on Close.
type ResultsWriter struct {
	baseURL    string
	database   string
	username   string
	password   string
	httpClient *http.Client
	batchSize  int

	positions []positionRow
	decisions []decisionRow
}

func NewResultsWriter(baseURL, database, username, password string, batchSize int) *ResultsWriter {
	if batchSize < 1 {
		batchSize = 1000
	}
	return &ResultsWriter{
		baseURL:    baseURL,
		database:   database,
		username:   username,
		password:   password,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// AddUnit buffers everything one unit produced under the given job id.
func (w *ResultsWriter) AddUnit(ctx context.Context, jobID string, res *engine.UnitResult) error {
	for _, p := range res.Positions {
		w.positions = append(w.positions, positionRow{
			JobID:          jobID,
			Symbol:         res.Symbol,
			Day:            res.Day,
			Side:           p.Side.String(),
			EntryPrice:     p.EntryPrice.String(),
			EntryTimeMs:    p.EntryTsMs,
			InitialStop:    p.InitialStop.String(),
			StopTierPct:    p.StopTierPct,
			PartialFills:   len(p.Partials),
			ExitPrice:      p.ExitPrice.String(),
			ExitTimeMs:     p.ExitTsMs,
			ExitReason:     p.ExitReason.String(),
			RealizedPnLPct: p.RealizedPnLPct.String(),
			MFEPct:         p.MFEPct,
			MAEPct:         p.MAEPct,
			IntervalsHeld:  p.IntervalsHeld,
		})
	}
	for _, d := range res.Decisions {
		w.decisions = append(w.decisions, decisionRow{
			JobID:                  jobID,
			Symbol:                 res.Symbol,
			Day:                    res.Day,
			TimeMs:                 d.TsMs,
			Decision:               d.Decision.String(),
			Reason:                 d.Reason.String(),
			BreakoutType:           d.BreakoutType.String(),
			VolumeRatio:            d.VolumeRatio,
			ResultingPhase:         d.ResultingPhase.String(),
			IntervalsSinceBreakout: d.IntervalsSinceBreakout,
		})
	}
	if len(w.positions) >= w.batchSize || len(w.decisions) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush sends both buffers.
func (w *ResultsWriter) Flush(ctx context.Context) error {
	if err := flushRows(ctx, w, "position_records", w.positions); err != nil {
		return err
	}
	w.positions = w.positions[:0]
	if err := flushRows(ctx, w, "decision_records", w.decisions); err != nil {
		return err
	}
	w.decisions = w.decisions[:0]
	return nil
}

func (w *ResultsWriter) Close(ctx context.Context) error { return w.Flush(ctx) }

func flushRows[T any](ctx context.Context, w *ResultsWriter, table string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip error: %w", err)
	}

	query := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", w.database, table)
	settings := "input_format_null_as_default=1&date_time_input_format=best_effort"
	endpoint := fmt.Sprintf("%s/?query=%s&%s", w.baseURL, url.QueryEscape(query), settings)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Content-Encoding", "gzip")
	req.SetBasicAuth(w.username, w.password)
	req.Header.Set("X-ClickHouse-Settings", "max_insert_block_size=1000000,input_format_allow_errors_num=0,insert_deduplicate=1")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("clickhouse error %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
