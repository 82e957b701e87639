// Command ingest loads session bar files and scanner pivot files into
// ClickHouse. Config comes from the environment; re-running over the same
// files is safe because the tables deduplicate on their natural keys.
package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/karthikjanagiraman/DayTrader-sub004/services/clickhouse"
	"github.com/karthikjanagiraman/DayTrader-sub004/services/engine"
)

type ingestConfig struct {
	Store      clickhouse.Config
	BarsDir    string
	PivotsCSV  string
	Day        string
	IntervalMs int64
}

func mustEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func loadIngestConfig() ingestConfig {
	_ = godotenv.Load()
	store := clickhouse.DefaultStoreConfig()
	store.DSN = mustEnv("CLICKHOUSE_DSN", store.DSN)
	store.Database = mustEnv("CH_DATABASE", store.Database)
	store.User = mustEnv("CH_USER", store.User)
	store.Password = mustEnv("CH_PASSWORD", store.Password)

	intervalMs, err := strconv.ParseInt(mustEnv("BAR_INTERVAL_MS", "60000"), 10, 64)
	if err != nil || intervalMs <= 0 {
		intervalMs = 60_000
	}
	return ingestConfig{
		Store:      store,
		BarsDir:    mustEnv("BARS_DIR", "./bars"),
		PivotsCSV:  mustEnv("PIVOTS_CSV", "./pivots.csv"),
		Day:        mustEnv("SESSION_DAY", time.Now().UTC().Format("2006-01-02")),
		IntervalMs: intervalMs,
	}
}

func main() {
	cfg := loadIngestConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	day, err := time.ParseInLocation("2006-01-02", cfg.Day, time.UTC)
	if err != nil {
		logger.Fatal("parse SESSION_DAY", zap.String("day", cfg.Day), zap.Error(err))
	}

	ctx := context.Background()
	store, err := clickhouse.OpenStore(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	pivots, err := engine.LoadPivotsCSV(cfg.PivotsCSV)
	if err != nil {
		logger.Fatal("load pivots csv", zap.String("path", cfg.PivotsCSV), zap.Error(err))
	}
	if err := store.InsertPivots(ctx, day, pivots); err != nil {
		logger.Fatal("insert pivots", zap.Error(err))
	}
	logger.Info("pivots ingested", zap.String("day", cfg.Day), zap.Int("rows", len(pivots)))

	entries, err := os.ReadDir(cfg.BarsDir)
	if err != nil {
		logger.Fatal("read bars dir", zap.String("dir", cfg.BarsDir), zap.Error(err))
	}

	var files, bars int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".csv") {
			continue
		}
		symbol := strings.TrimSuffix(name, filepath.Ext(name))
		stream, err := engine.LoadBarsCSV(filepath.Join(cfg.BarsDir, name))
		if err != nil {
			// Non-fatal: other symbols still load.
			logger.Warn("skip bars file", zap.String("file", name), zap.Error(err))
			continue
		}
		if err := engine.ValidateStream(symbol, stream, cfg.IntervalMs); err != nil {
			logger.Warn("skip bars file, gap detected", zap.String("file", name), zap.Error(err))
			continue
		}
		if err := store.InsertBars(ctx, symbol, cfg.IntervalMs, stream); err != nil {
			logger.Fatal("insert bars", zap.String("symbol", symbol), zap.Error(err))
		}
		files++
		bars += len(stream)
	}

	logger.Info("ingest complete",
		zap.String("day", cfg.Day),
		zap.Int("symbols", files),
		zap.Int("bars", bars),
	)
}
