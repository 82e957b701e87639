// Command run_breakout executes a batch of breakout simulations from the
// command line. Bars come either from local CSV files or from a ClickHouse
// HTTP export; pivots always come from a scanner CSV.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/karthikjanagiraman/DayTrader-sub004/services/arrowpipeline"
	"github.com/karthikjanagiraman/DayTrader-sub004/services/engine"
)

func main() {
	chURL := flag.String("ch-url", "http://localhost:18123", "ClickHouse HTTP URL")
	db := flag.String("db", "breakout", "ClickHouse database")
	user := flag.String("ch-user", "default", "ClickHouse user")
	pass := flag.String("ch-pass", "", "ClickHouse password")
	day := flag.String("day", "2025-06-02", "Session day (YYYY-MM-DD, UTC)")
	pivotsPath := flag.String("pivots", "./pivots.csv", "Scanner pivots CSV")
	barsDir := flag.String("bars-dir", "", "Directory of SYMBOL.csv bar files; if set, skip ClickHouse download")
	intervalMs := flag.Int64("interval-ms", 60_000, "Bar interval in milliseconds")
	workers := flag.Int("workers", 4, "Parallel unit workers")
	outPositions := flag.String("out-positions", "./positions.csv", "Positions CSV output path")
	outDecisions := flag.String("out-decisions", "./decisions.csv", "Decisions CSV output path")
	arrowOut := flag.String("arrow-out", "", "Optional Arrow IPC output path for positions")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	logger := buildLogger(*verbose)
	defer logger.Sync()

	pivots, err := engine.LoadPivotsCSV(*pivotsPath)
	if err != nil {
		logger.Fatal("load pivots", zap.Error(err))
	}
	if len(pivots) == 0 {
		logger.Fatal("no pivots in scanner csv", zap.String("path", *pivotsPath))
	}

	cfg := engine.DefaultConfig()
	cfg.BarIntervalMs = *intervalMs
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var units []engine.Unit
	for _, pivot := range pivots {
		var barsPath string
		if *barsDir != "" {
			barsPath, err = cleanLocalCSV(filepath.Join(*barsDir, pivot.Symbol+".csv"))
		} else {
			barsPath, err = exportBarsCSV(*chURL, *db, *user, *pass, pivot.Symbol, *day, *intervalMs)
		}
		if err != nil {
			logger.Warn("skip unit, bars unavailable", zap.String("symbol", pivot.Symbol), zap.Error(err))
			continue
		}
		bars, err := engine.LoadBarsCSV(barsPath)
		if err != nil {
			logger.Warn("skip unit, bad bars csv", zap.String("symbol", pivot.Symbol), zap.Error(err))
			continue
		}
		units = append(units, engine.Unit{Symbol: pivot.Symbol, Day: *day, Pivot: pivot, Bars: bars})
	}
	if len(units) == 0 {
		logger.Fatal("no runnable units")
	}

	runner, err := engine.NewRunner(&cfg, *workers, logger)
	if err != nil {
		logger.Fatal("runner", zap.Error(err))
	}
	run, err := runner.Run(context.Background(), units)
	if err != nil {
		logger.Fatal("run", zap.Error(err))
	}

	if err := engine.WritePositionsCSV(*outPositions, run.Results); err != nil {
		logger.Warn("export positions csv", zap.Error(err))
	}
	if err := engine.WriteDecisionsCSV(*outDecisions, run.Results); err != nil {
		logger.Warn("export decisions csv", zap.Error(err))
	}
	if *arrowOut != "" {
		if f, err := os.Create(*arrowOut); err == nil {
			exporter := arrowpipeline.NewExporter(logger)
			if err := exporter.WritePositions(f, run.Results); err != nil {
				logger.Warn("export arrow", zap.Error(err))
			}
			f.Close()
		} else {
			logger.Warn("create arrow file", zap.Error(err))
		}
	}

	s := run.Summary
	fmt.Println("=== Breakout Simulation Summary ===")
	fmt.Printf("Job: %s (config %s)\n", run.Manifest.JobID, run.Manifest.ConfigHash[:12])
	fmt.Printf("Day: %s  Units: %d  Failures: %d\n", *day, len(run.Results), len(run.Failures))
	fmt.Printf("Positions: %d  WinRate: %.1f%%  Expectancy: %.3f%%  ProfitFactor: %.2f\n",
		s.Positions, s.WinRate*100, s.ExpectancyPct, s.ProfitFactor)
	fmt.Printf("MaxDrawdown: %.3f%%  StdDev: %.3f%%\n", s.MaxDrawdownPct, s.StdDevPct)
	for reason, n := range s.ExitCounts {
		fmt.Printf("  %-12s %d\n", reason, n)
	}
	for _, f := range run.Failures {
		fmt.Printf("FAILED %s/%s: %s\n", f.Symbol, f.Day, f.Err)
	}
}

func buildLogger(verbose bool) *zap.Logger {
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

// exportBarsCSV downloads one symbol/day bar stream through the ClickHouse
// HTTP interface in the format LoadBarsCSV expects.
func exportBarsCSV(chURL, db, user, pass, symbol, day string, intervalMs int64) (string, error) {
	q := fmt.Sprintf(`
SELECT
    open_time_ms,
    toString(open),
    toString(high),
    toString(low),
    toString(close),
    toString(volume)
FROM %s.bars
WHERE symbol = '%s'
  AND interval_ms = %d
  AND open_time_ms >= toUnixTimestamp64Milli(toDateTime64('%s 00:00:00',3,'UTC'))
  AND open_time_ms <  toUnixTimestamp64Milli(toDateTime64('%s 00:00:00',3,'UTC') + INTERVAL 1 DAY)
ORDER BY open_time_ms
FORMAT CSV
`, db, symbol, intervalMs, day, day)

	endpoint := fmt.Sprintf("%s/?%s", strings.TrimRight(chURL, "/"), url.Values{
		"query":    {q},
		"user":     {user},
		"password": {pass},
	}.Encode())

	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("bars_%s_%s.csv", symbol, day))
	resp, err := http.Get(endpoint)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("clickhouse export error %d: %s", resp.StatusCode, string(b))
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer outFile.Close()
	w := bufio.NewWriter(outFile)
	w.WriteString("timestamp,open,high,low,close,volume\n")
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	return outPath, w.Flush()
}

// cleanLocalCSV strips quotes and BOMs from a local export, decoding UTF-16
// when a byte-order mark says so, and writes a clean sibling file.
func cleanLocalCSV(path string) (string, error) {
	inF, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer inF.Close()

	cleanPath := path + ".clean.csv"
	outF, err := os.Create(cleanPath)
	if err != nil {
		return "", err
	}
	defer outF.Close()
	w := bufio.NewWriter(outF)

	var reader io.Reader
	br := bufio.NewReader(inF)
	head, _ := br.Peek(2)
	if len(head) >= 2 && ((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		if _, err := inF.Seek(0, 0); err != nil {
			return "", err
		}
		reader = transform.NewReader(inF, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	} else {
		reader = br
	}

	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "\uFEFF")
		line = strings.ReplaceAll(line, "\"", "")
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return cleanPath, w.Flush()
}
