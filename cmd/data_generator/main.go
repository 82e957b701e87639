//! Data Generator - Creates sample session data for testing
//!
//! Generates one synthetic trading session per symbol: quiet drift, then a
//! volume-spike breakout through a pivot, so the confirmation machine and
//! exit engine have something to chew on. Also writes a matching pivots CSV.

package main

import (
	"encoding/csv"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go <output_dir> [symbols] [bars]")
		fmt.Println("Example: go run main.go ./testdata 3 390")
		os.Exit(1)
	}

	outDir := os.Args[1]
	symbols := 3
	bars := 390 // full 1m session
	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &symbols)
	}
	if len(os.Args) > 3 {
		fmt.Sscanf(os.Args[3], "%d", &bars)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}

	rng := rand.New(rand.NewSource(42)) // Fixed seed for reproducibility
	sessionStart := time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC)

	pivotsFile, err := os.Create(filepath.Join(outDir, "pivots.csv"))
	if err != nil {
		log.Fatalf("Failed to create pivots file: %v", err)
	}
	defer pivotsFile.Close()
	pw := csv.NewWriter(pivotsFile)
	defer pw.Flush()
	pw.Write([]string{"symbol", "side", "pivot", "target1", "target2", "support_or_resistance", "scanner_risk_reward"})

	for s := 0; s < symbols; s++ {
		symbol := fmt.Sprintf("SYM%02d", s+1)
		price := 50.0 + rng.Float64()*150.0
		pivot := price * 1.004
		target1 := pivot * 1.025
		target2 := pivot * 1.045
		support := price * 0.99

		pw.Write([]string{
			symbol, "LONG",
			fmtF(pivot), fmtF(target1), fmtF(target2), fmtF(support),
			fmtF(2.0 + rng.Float64()),
		})

		if err := writeSession(filepath.Join(outDir, symbol+".csv"), rng, sessionStart, price, pivot, bars); err != nil {
			log.Fatalf("Failed to write %s session: %v", symbol, err)
		}
		fmt.Printf("Generated %s: %d bars, pivot %.2f\n", symbol, bars, pivot)
	}
}

// writeSession emits one day of 1m bars. Around a third of the way in, the
// price breaks the pivot on a volume spike.
func writeSession(path string, rng *rand.Rand, start time.Time, price, pivot float64, bars int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()
	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}

	breakoutBar := bars / 3
	baseVolume := 8000.0

	for i := 0; i < bars; i++ {
		drift := (rng.Float64() - 0.5) * 0.002
		volume := baseVolume * (0.7 + rng.Float64()*0.6)

		switch {
		case i == breakoutBar:
			// Breakout candle: big body through the pivot on heavy volume.
			drift = (pivot/price - 1) + 0.004
			volume = baseVolume * 3.5
		case i > breakoutBar && i < breakoutBar+20:
			drift = 0.0008 + (rng.Float64()-0.5)*0.002
			volume = baseVolume * (1.0 + rng.Float64())
		case i >= breakoutBar+20:
			drift = (rng.Float64() - 0.5) * 0.003
		}

		open := price
		closeP := price * (1 + drift)
		high := maxF(open, closeP) * (1 + rng.Float64()*0.0008)
		low := minF(open, closeP) * (1 - rng.Float64()*0.0008)
		ts := start.Add(time.Duration(i) * time.Minute).UnixMilli()

		row := []string{
			strconv.FormatInt(ts, 10),
			fmtF(open), fmtF(high), fmtF(low), fmtF(closeP), fmtF(volume),
		}
		if err := w.Write(row); err != nil {
			return err
		}
		price = closeP
	}
	return nil
}

func fmtF(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
