// Package main serves breakout simulations over HTTP and gRPC, with a
// websocket feed of per-unit event logs.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	pb "github.com/karthikjanagiraman/DayTrader-sub004/proto"
	"github.com/karthikjanagiraman/DayTrader-sub004/services/clickhouse"
	"github.com/karthikjanagiraman/DayTrader-sub004/services/engine"
)

type serverConfig struct {
	HTTPPort int
	GRPCPort int
	Store    clickhouse.Config
}

func envStr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func loadServerConfig() serverConfig {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	store := clickhouse.DefaultStoreConfig()
	store.DSN = envStr("CLICKHOUSE_DSN", store.DSN)
	store.Database = envStr("CH_DATABASE", store.Database)
	store.User = envStr("CH_USER", store.User)
	store.Password = envStr("CH_PASSWORD", store.Password)
	return serverConfig{
		HTTPPort: envInt("HTTP_PORT", 8080),
		GRPCPort: envInt("GRPC_PORT", 9090),
		Store:    store,
	}
}

type jobEntry struct {
	resp   *pb.SimulateResponse
	events []engine.Event
}

// SimulationService runs simulations against pivots and bars stored in
// ClickHouse and keeps completed jobs in memory for retrieval.
type SimulationService struct {
	pb.UnimplementedBreakoutServiceServer

	cfg      engine.Config
	store    *clickhouse.Store
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

func NewSimulationService(cfg engine.Config, store *clickhouse.Store, logger *zap.Logger) *SimulationService {
	return &SimulationService{
		cfg:    cfg,
		store:  store,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		jobs: map[string]*jobEntry{},
	}
}

// ExecuteSimulation implements the gRPC service method and backs the HTTP
// handler.
func (s *SimulationService) ExecuteSimulation(ctx context.Context, req *pb.SimulateRequest) (*pb.SimulateResponse, error) {
	start := time.Now()

	units, err := s.loadUnits(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no units for day %s", req.Day)
	}

	workers := req.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	runner, err := engine.NewRunner(&s.cfg, workers, s.logger)
	if err != nil {
		return nil, err
	}
	run, err := runner.Run(ctx, units)
	if err != nil {
		return nil, err
	}

	resp := convertRun(run)
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()

	var events []engine.Event
	for _, res := range run.Results {
		events = append(events, res.Events...)
	}
	s.mu.Lock()
	s.jobs[resp.JobID] = &jobEntry{resp: resp, events: events}
	s.mu.Unlock()

	s.logger.Info("simulation complete",
		zap.String("job_id", resp.JobID),
		zap.String("day", req.Day),
		zap.Int("units", len(units)),
		zap.Int64("execution_ms", resp.ExecutionTimeMs),
	)
	return resp, nil
}

// loadUnits pulls the day's pivots and their bar streams from ClickHouse.
func (s *SimulationService) loadUnits(ctx context.Context, req *pb.SimulateRequest) ([]engine.Unit, error) {
	day, err := time.ParseInLocation("2006-01-02", req.Day, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse day %q: %w", req.Day, err)
	}
	fromMs := day.UnixMilli()
	toMs := day.Add(24 * time.Hour).UnixMilli()

	pivots, err := s.store.QueryPivots(ctx, day)
	if err != nil {
		return nil, err
	}

	want := map[string]bool{}
	for _, sym := range req.Symbols {
		want[sym] = true
	}

	var units []engine.Unit
	for _, pivot := range pivots {
		if len(want) > 0 && !want[pivot.Symbol] {
			continue
		}
		bars, err := s.store.QueryBars(ctx, pivot.Symbol, s.cfg.BarIntervalMs, fromMs, toMs)
		if err != nil {
			return nil, fmt.Errorf("load bars for %s: %w", pivot.Symbol, err)
		}
		units = append(units, engine.Unit{
			Symbol: pivot.Symbol,
			Day:    req.Day,
			Pivot:  pivot,
			Bars:   bars,
		})
	}
	return units, nil
}

func (s *SimulationService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/simulate", s.handleSimulate)
		api.GET("/simulate/:job_id", s.handleGetJob)
		api.GET("/simulate/:job_id/events", s.handleStreamEvents)
		api.GET("/health", s.handleHealth)
	}
}

func (s *SimulationService) handleSimulate(c *gin.Context) {
	var req pb.SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.ExecuteSimulation(c.Request.Context(), &req)
	if err != nil {
		s.logger.Error("simulation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *SimulationService) handleGetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	s.mu.RLock()
	entry, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job", "job_id": jobID})
		return
	}
	c.JSON(http.StatusOK, entry.resp)
}

// handleStreamEvents replays a completed job's event log over a websocket,
// one JSON frame per event, then closes.
func (s *SimulationService) handleStreamEvents(c *gin.Context) {
	jobID := c.Param("job_id")
	s.mu.RLock()
	entry, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job", "job_id": jobID})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for _, ev := range entry.events {
		frame := gin.H{
			"ts_ms":   ev.TsMs,
			"type":    ev.Type,
			"symbol":  ev.Symbol,
			"details": ev.Details,
		}
		if err := conn.WriteJSON(frame); err != nil {
			s.logger.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of events"))
}

func (s *SimulationService) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"config_hash": s.cfg.Hash(),
	})
}

func convertRun(run *engine.RunResult) *pb.SimulateResponse {
	resp := &pb.SimulateResponse{
		JobID: run.Manifest.JobID,
		Manifest: &pb.RunManifest{
			JobID:      run.Manifest.JobID,
			ConfigHash: run.Manifest.ConfigHash,
			Version:    run.Manifest.Version,
			CreatedAt:  run.Manifest.CreatedAt.UnixMilli(),
			Units:      run.Manifest.Units,
			Interval:   run.Manifest.Interval,
			Workers:    run.Manifest.Workers,
		},
		Summary: convertSummary(run.Summary),
	}
	for _, res := range run.Results {
		resp.Units = append(resp.Units, convertUnit(res))
	}
	for _, f := range run.Failures {
		resp.Failures = append(resp.Failures, pb.UnitFailure{Symbol: f.Symbol, Day: f.Day, Error: f.Err})
	}
	return resp
}

func convertSummary(s engine.Summary) *pb.RunSummary {
	return &pb.RunSummary{
		Positions:      s.Positions,
		Wins:           s.Wins,
		Losses:         s.Losses,
		WinRate:        s.WinRate,
		AvgWinPct:      s.AvgWinPct,
		AvgLossPct:     s.AvgLossPct,
		ExpectancyPct:  s.ExpectancyPct,
		StdDevPct:      s.StdDevPct,
		ProfitFactor:   s.ProfitFactor,
		MaxDrawdownPct: s.MaxDrawdownPct,
		ExitCounts:     s.ExitCounts,
	}
}

func convertUnit(res *engine.UnitResult) *pb.UnitResult {
	out := &pb.UnitResult{Symbol: res.Symbol, Day: res.Day}
	for _, d := range res.Decisions {
		out.Decisions = append(out.Decisions, pb.DecisionResult{
			Symbol:                 d.Symbol,
			TimeMs:                 d.TsMs,
			Decision:               d.Decision.String(),
			Reason:                 d.Reason.String(),
			BreakoutType:           d.BreakoutType.String(),
			VolumeRatio:            d.VolumeRatio,
			ResultingPhase:         d.ResultingPhase.String(),
			IntervalsSinceBreakout: d.IntervalsSinceBreakout,
		})
	}
	for _, p := range res.Positions {
		pr := pb.PositionResult{
			Symbol:         p.Symbol,
			Side:           p.Side.String(),
			EntryTimeMs:    p.EntryTsMs,
			EntryPrice:     p.EntryPrice.String(),
			InitialStop:    p.InitialStop.String(),
			StopTierPct:    p.StopTierPct,
			ExitTimeMs:     p.ExitTsMs,
			ExitPrice:      p.ExitPrice.String(),
			ExitReason:     p.ExitReason.String(),
			RealizedPnLPct: p.RealizedPnLPct.String(),
			MFEPct:         p.MFEPct,
			MAEPct:         p.MAEPct,
			IntervalsHeld:  p.IntervalsHeld,
		}
		for _, fill := range p.Partials {
			pr.Partials = append(pr.Partials, pb.PartialFill{
				TimeMs:   fill.TsMs,
				Price:    fill.Price.String(),
				Fraction: fill.Fraction.String(),
				Reason:   fill.Reason.String(),
			})
		}
		out.Positions = append(out.Positions, pr)
	}
	return out
}

func main() {
	cfg := loadServerConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := clickhouse.OpenStore(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("open clickhouse store", zap.Error(err))
	}
	defer store.Close()

	engineCfg := engine.DefaultConfig()
	if err := engineCfg.Validate(); err != nil {
		logger.Fatal("engine config", zap.Error(err))
	}

	service := NewSimulationService(engineCfg, store, logger)

	grpcServer := grpc.NewServer()
	pb.RegisterBreakoutServiceServer(grpcServer, service)
	reflection.Register(grpcServer)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	service.setupHTTPRoutes(router)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			logger.Fatal("listen grpc", zap.Error(err))
		}
		logger.Info("grpc server up", zap.Int("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("serve grpc", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("http server up", zap.Int("port", cfg.HTTPPort))
		if err := router.Run(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil {
			logger.Fatal("serve http", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	grpcServer.GracefulStop()
}
