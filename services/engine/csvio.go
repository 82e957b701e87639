package engine

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// LoadBarsCSV reads a bar stream from a timestamp,open,high,low,close,volume
// file. A header row and malformed rows are skipped.
func LoadBarsCSV(filename string) ([]Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(bufio.NewReader(file))
	r.ReuseRecord = false
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	bars := make([]Bar, 0, 1_000)
	lineIndex := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			lineIndex++
			continue
		}
		if len(rec) < 6 {
			lineIndex++
			continue
		}
		if lineIndex == 0 && (strings.EqualFold(rec[0], "timestamp") || strings.EqualFold(rec[0], "timestamp_ms")) {
			lineIndex++
			continue
		}

		tsStr := strings.TrimSpace(rec[0])
		tsStr = strings.TrimPrefix(tsStr, "\uFEFF")
		timestamp, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			lineIndex++
			continue
		}
		open, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
		if err != nil {
			lineIndex++
			continue
		}
		high, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
		if err != nil {
			lineIndex++
			continue
		}
		low, err := decimal.NewFromString(strings.TrimSpace(rec[3]))
		if err != nil {
			lineIndex++
			continue
		}
		closeP, err := decimal.NewFromString(strings.TrimSpace(rec[4]))
		if err != nil {
			lineIndex++
			continue
		}
		volume, err := decimal.NewFromString(strings.TrimSpace(rec[5]))
		if err != nil {
			lineIndex++
			continue
		}

		bars = append(bars, Bar{
			TsMs:   timestamp,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: volume,
		})
		lineIndex++
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("no valid bars in %s", filename)
	}
	return bars, nil
}

// LoadPivotsCSV reads scanner pivots from a
// symbol,side,pivot,target1,target2,support_or_resistance,scanner_risk_reward
// file. target2, support_or_resistance and scanner_risk_reward may be empty.
func LoadPivotsCSV(filename string) ([]PivotRecord, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(bufio.NewReader(file))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var pivots []PivotRecord
	lineIndex := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read pivots csv: %w", err)
		}
		if len(rec) < 4 {
			lineIndex++
			continue
		}
		if lineIndex == 0 && strings.EqualFold(rec[0], "symbol") {
			lineIndex++
			continue
		}

		p := PivotRecord{Symbol: strings.TrimSpace(rec[0])}
		switch strings.ToUpper(strings.TrimSpace(rec[1])) {
		case SideShort.String():
			p.Side = SideShort
		default:
			p.Side = SideLong
		}
		if p.PivotPrice, err = decimal.NewFromString(strings.TrimSpace(rec[2])); err != nil {
			return nil, fmt.Errorf("pivots csv line %d: bad pivot price: %w", lineIndex+1, err)
		}
		if v := strings.TrimSpace(rec[3]); v != "" {
			if p.Target1, err = decimal.NewFromString(v); err != nil {
				return nil, fmt.Errorf("pivots csv line %d: bad target1: %w", lineIndex+1, err)
			}
		}
		if len(rec) > 4 {
			if v := strings.TrimSpace(rec[4]); v != "" {
				if p.Target2, err = decimal.NewFromString(v); err != nil {
					return nil, fmt.Errorf("pivots csv line %d: bad target2: %w", lineIndex+1, err)
				}
			}
		}
		if len(rec) > 5 {
			if v := strings.TrimSpace(rec[5]); v != "" {
				if p.SupportOrResistance, err = decimal.NewFromString(v); err != nil {
					return nil, fmt.Errorf("pivots csv line %d: bad support/resistance: %w", lineIndex+1, err)
				}
			}
		}
		if len(rec) > 6 {
			if v := strings.TrimSpace(rec[6]); v != "" {
				if p.ScannerRiskReward, err = strconv.ParseFloat(v, 64); err != nil {
					return nil, fmt.Errorf("pivots csv line %d: bad risk/reward: %w", lineIndex+1, err)
				}
			}
		}
		pivots = append(pivots, p)
		lineIndex++
	}
	return pivots, nil
}

// WritePositionsCSV exports closed positions for spreadsheet analysis.
func WritePositionsCSV(filename string, results []*UnitResult) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{
		"symbol", "day", "side", "entry_time_ms", "entry_price", "initial_stop",
		"stop_tier_pct", "partial_fills", "exit_time_ms", "exit_price",
		"exit_reason", "realized_pnl_pct", "mfe_pct", "mae_pct", "intervals_held",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, res := range results {
		for _, p := range res.Positions {
			row := []string{
				p.Symbol,
				res.Day,
				p.Side.String(),
				strconv.FormatInt(p.EntryTsMs, 10),
				p.EntryPrice.String(),
				p.InitialStop.String(),
				strconv.FormatFloat(p.StopTierPct, 'f', -1, 64),
				strconv.Itoa(len(p.Partials)),
				strconv.FormatInt(p.ExitTsMs, 10),
				p.ExitPrice.String(),
				p.ExitReason.String(),
				p.RealizedPnLPct.String(),
				strconv.FormatFloat(p.MFEPct, 'f', -1, 64),
				strconv.FormatFloat(p.MAEPct, 'f', -1, 64),
				strconv.Itoa(p.IntervalsHeld),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteDecisionsCSV exports every entry-attempt decision of a run.
func WriteDecisionsCSV(filename string, results []*UnitResult) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{
		"symbol", "day", "time_ms", "decision", "reason", "breakout_type",
		"volume_ratio", "resulting_phase", "intervals_since_breakout",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, res := range results {
		for _, d := range res.Decisions {
			row := []string{
				d.Symbol,
				res.Day,
				strconv.FormatInt(d.TsMs, 10),
				d.Decision.String(),
				d.Reason.String(),
				d.BreakoutType.String(),
				strconv.FormatFloat(d.VolumeRatio, 'f', -1, 64),
				d.ResultingPhase.String(),
				strconv.Itoa(d.IntervalsSinceBreakout),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}
