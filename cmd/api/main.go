// cmd/api serves backtests over HTTP, journals every run to SQLite and
// streams finished reports to WebSocket clients.
//
// With REDIS_ENABLED=true results are cached in Redis and reports are
// published on pub:backtest:<symbol>, from where the gateway relays them;
// otherwise the gateway is fed in process.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"market-analyzer/config"
	"market-analyzer/internal/api"
	"market-analyzer/internal/backtest"
	"market-analyzer/internal/gateway"
	"market-analyzer/internal/logger"
	"market-analyzer/internal/metrics"
	"market-analyzer/internal/notification"
	redisstore "market-analyzer/internal/store/redis"
	sqlitestore "market-analyzer/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[api] %v", err)
	}
	logger.Init("api", cfg.SlogLevel())

	ind, risk, err := cfg.BacktestDefaults()
	if err != nil {
		log.Fatalf("[api] invalid backtest defaults: %v", err)
	}
	if cfg.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus(cfg.RedisEnabled)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, prometheus.DefaultGatherer, health)
	metricsSrv.Start()

	// ---- SQLite: bars + run journal ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatalf("[api] data dir: %v", err)
	}
	db, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[api] sqlite init failed: %v", err)
	}
	defer db.Close()
	health.SetSQLiteOK(true)

	journal := sqlitestore.NewJournal(db)
	reader := sqlitestore.NewReader(db)
	hub := gateway.NewHub(prom)

	sinks := []backtest.Sink{
		journal,
		backtest.SinkFunc(func(context.Context, *backtest.Report) error {
			health.SetLastRunAt(time.Now())
			return nil
		}),
	}
	opts := []backtest.Option{backtest.WithMetrics(prom)}

	// ---- Redis: cache + publisher (optional) ----
	var rdb *goredis.Client
	if cfg.RedisEnabled {
		rdb, err = redisstore.NewClient(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			slog.Warn("redis unavailable, continuing without it", "err", err)
			health.SetRedisConnected(false)
		}
	}
	if rdb != nil {
		defer rdb.Close()
		health.SetRedisConnected(true)

		cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
		cb.Instrument(prom)

		writer := redisstore.NewWriter(rdb)
		writer.OnWrite = func(d time.Duration) { prom.RedisWriteDur.Observe(d.Seconds()) }
		buffered := redisstore.NewBufferedWriter(ctx, writer, cb, 1000)
		buffered.OnFlush = func(n int) { slog.Info("redis backlog flushed", "reports", n) }

		sinks = append(sinks, buffered)
		opts = append(opts, backtest.WithCache(redisstore.NewResultCache(rdb, cb, cfg.CacheTTL)))
		go gateway.NewPubSubRouter(hub, redisstore.NewReader(rdb)).Run(ctx)
	} else {
		sinks = append(sinks, hub)
	}
	health.StartLivenessChecker(ctx, rdb, db, 10*time.Second)

	// ---- Notifications ----
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramEnabled() {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	sinks = append(sinks, notification.NewReportSink(notifiers, cfg.AlertLossPct))

	opts = append(opts, backtest.WithSinks(sinks...))
	runner := backtest.NewRunner(opts...)

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Runner:     runner,
		Bars:       reader,
		Symbols:    reader,
		Runs:       journal,
		Hub:        hub,
		Health:     health,
		Indicators: ind,
		Risk:       risk,
	}, api.Options{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RequestTimeout: time.Minute,
	})

	go func() {
		slog.Info("api listening", "addr", cfg.HTTPAddr, "strategy", runner.StrategyName(), "redis", rdb != nil)
		if err := srv.Start(ctx, cfg.HTTPAddr); err != nil {
			slog.Error("api server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, cleaning up")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Warn("api shutdown", "err", err)
	}
	hub.Close()
	metricsSrv.Stop(shutdownCtx)
	slog.Info("shutdown complete")
}
