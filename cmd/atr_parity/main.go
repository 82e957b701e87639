package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"

	"github.com/karthikjanagiraman/DayTrader-sub004/services/engine"
)

// Cross-checks the engine's Wilder ATR against the ta-lib reference on a bar
// file and writes a row-by-row parity report. Any diff above the tolerance
// counts as a mismatch and fails the run.

type parityRow struct {
	tsMs    int64
	atrPct  float64
	refPct  float64
	diff    float64
	matched bool
}

func main() {
	var (
		barsCSV   = flag.String("bars", "", "input bar CSV (timestamp_ms,open,high,low,close,volume)")
		period    = flag.Int("period", 14, "ATR period")
		tolerance = flag.Float64("tolerance", 1e-6, "match tolerance in ATR%% points")
		output    = flag.String("output", "atr_parity.csv", "output CSV path")
	)
	flag.Parse()

	if *barsCSV == "" {
		log.Fatal("bars is required")
	}

	bars, err := engine.LoadBarsCSV(*barsCSV)
	if err != nil {
		log.Fatalf("load bars: %v", err)
	}

	var rows []parityRow
	mismatches := 0
	for i := range bars {
		ours, err := engine.ATRPct(bars, i, *period)
		if err != nil {
			continue // warmup window
		}
		ref, err := engine.ReferenceATRPct(bars, i, *period)
		if err != nil {
			continue
		}
		diff := math.Abs(ours - ref)
		matched := diff <= *tolerance
		if !matched {
			mismatches++
		}
		rows = append(rows, parityRow{tsMs: bars[i].TsMs, atrPct: ours, refPct: ref, diff: diff, matched: matched})
	}
	if len(rows) == 0 {
		log.Fatalf("no bars past the %d-bar warmup in %s", *period, *barsCSV)
	}

	if err := writeReport(*output, rows); err != nil {
		log.Fatalf("write report: %v", err)
	}

	fmt.Printf("checked %d bars, %d mismatches above %.1e, report: %s\n",
		len(rows), mismatches, *tolerance, *output)
	if mismatches > 0 {
		os.Exit(1)
	}
}

func writeReport(path string, rows []parityRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp_ms", "atr_pct", "ref_atr_pct", "diff", "match"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatInt(r.tsMs, 10),
			strconv.FormatFloat(r.atrPct, 'f', 10, 64),
			strconv.FormatFloat(r.refPct, 'f', 10, 64),
			strconv.FormatFloat(r.diff, 'f', 10, 64),
			strconv.FormatBool(r.matched),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return w.Error()
}
