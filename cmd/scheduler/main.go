package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/torsoroso16/api-project/internal/config/scheduler"
	"github.com/torsoroso16/api-project/internal/obs"
	pg "github.com/torsoroso16/api-project/internal/repository/postgres"
	redisrepo "github.com/torsoroso16/api-project/internal/repository/redis"
	"github.com/torsoroso16/api-project/internal/services/api-gateway/auth"
	"github.com/torsoroso16/api-project/internal/services/scheduler"
	"github.com/torsoroso16/api-project/internal/services/scheduler/repo"
	"go.uber.org/zap"
)

// The standalone scheduler is for deployments that run several api-gateway
// replicas with cleanup.enabled=false.
func main() {
	cfgPath := flag.String("config", "config/scheduler.yaml", "path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting scheduler",
		zap.Duration("expired_tokens_every", cfg.Sched.ExpiredTokens),
		zap.Duration("markers_every", cfg.Sched.Markers),
		zap.String("metrics_addr", cfg.Sched.MetricsAddr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig(cfg.App))
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.NewDB(ctx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// redis; without it only the ledger sweep runs
	var markers scheduler.MarkerSweeper
	checks := []obs.HealthCheck{{Name: "db", Fn: db.Ping}}
	if cfg.Redis.Enabled {
		rdb, err := redisrepo.NewClient(ctx, cfg.Redis)
		if err != nil {
			l.Fatal("redis connect", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		markers = repo.Markers{
			S:        redisrepo.NewCache(rdb),
			Prefixes: auth.SweptPrefixes,
			Bounds:   auth.SweepBounds(cfg.Sched.LoginFailureWindow),
		}
		checks = append(checks, obs.HealthCheck{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}

	ms := obs.BootstrapMetricsServer(cfg.Sched.MetricsAddr, l, checks...)

	// wiring
	uc := scheduler.NewUC(repo.Ledger{L: pg.NewRefreshTokenRepo(db)}, markers, cfg.Sched.RefreshTTL, l)
	uc.Outbox = pg.NewOutboxRepo(db)
	runner := scheduler.New(l, uc.Tasks(cfg.Sched.Intervals)...)

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("runner error", zap.Error(err))
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
