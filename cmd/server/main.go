// Command server is the orchestrator's long-running process: it loads
// internal/config.Config, wires the Postgres/Redis-backed execution
// engine, and serves the /workflow/* HTTP API and a Prometheus /metrics
// endpoint (SPEC_FULL.md §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wavehq/orchestrator/internal/api"
	"github.com/wavehq/orchestrator/internal/config"
	"github.com/wavehq/orchestrator/pkg/domain"
	"github.com/wavehq/orchestrator/pkg/domainconfig"
	"github.com/wavehq/orchestrator/pkg/execution"
	"github.com/wavehq/orchestrator/pkg/persistence"
	"github.com/wavehq/orchestrator/pkg/queue"
	"github.com/wavehq/orchestrator/pkg/rlmconfig"
)

func main() {
	configPath := os.Getenv("WAVE_CONFIG")
	if configPath == "" {
		configPath = "config/wave.yaml"
	}
	projectPath := os.Getenv("WAVE_PROJECT")
	if projectPath == "" {
		projectPath = "."
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: loading config: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, projectPath, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, projectPath string, logger *zap.Logger) error {
	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	if err := persistence.Migrate(db.DB); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	sessions := persistence.NewSessionRepository(db)
	stories := persistence.NewStoryRepository(db)
	checkpoints := persistence.NewCheckpointRepository(db)
	engine := execution.NewEngine(stories, checkpoints)
	q := queue.New(rdb)

	rlmConfigPath := filepath.Join(projectPath, "config", "rlm.json")
	rlmWatcher, err := rlmconfig.Watch(rlmConfigPath, logger, func(next rlmconfig.Config) {
		logger.Info("rlm config reloaded", zap.Float64("daily_limit_usd", next.Budget.DailyLimitUSD))
	})
	if err != nil {
		return fmt.Errorf("watching rlm config: %w", err)
	}
	defer rlmWatcher.Close()

	domainWatcher, err := domainconfig.Watch(filepath.Join(projectPath, "wave-config.json"), logger, func(rules []domain.DomainRule) {
		logger.Info("domain config reloaded", zap.Int("domains", len(rules)))
	})
	if err != nil {
		return fmt.Errorf("watching domain config: %w", err)
	}
	defer domainWatcher.Close()

	server := api.NewServer(engine, stories, sessions, q, logger)
	router := api.NewRouter(server)

	apiSrv := &http.Server{Addr: ":" + cfg.Server.APIPort, Handler: router}
	metricsSrv := &http.Server{Addr: ":" + cfg.Server.MetricsPort, Handler: promhttp.Handler()}

	errCh := make(chan error, 2)
	go func() { errCh <- apiSrv.ListenAndServe() }()
	go func() { errCh <- metricsSrv.ListenAndServe() }()

	logger.Info("server started",
		zap.String("api_port", cfg.Server.APIPort),
		zap.String("metrics_port", cfg.Server.MetricsPort))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("server stopped")
	return nil
}
