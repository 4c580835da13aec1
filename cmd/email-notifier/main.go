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

	config "github.com/torsoroso16/api-project/internal/config/email-notifier"
	"github.com/torsoroso16/api-project/internal/obs"
	"github.com/torsoroso16/api-project/internal/repository/kafka"
	pg "github.com/torsoroso16/api-project/internal/repository/postgres"
	notifier "github.com/torsoroso16/api-project/internal/services/email-notifier"
	"github.com/torsoroso16/api-project/internal/services/email-notifier/repo"
	"go.uber.org/zap"
)

func wiring(db *pg.DB, cfg *config.Config, cons *kafka.Consumer, l *zap.Logger) *notifier.Runner {
	uc := &notifier.Handler{
		Store:       repo.NotificationRepo{R: pg.NewNotificationRepo(db)},
		Out:         notifier.New(cfg.SMTP).WithLogger(l),
		Clock:       repo.SystemClock{},
		FrontendURL: cfg.FrontendURL,
		AppName:     "Storefront",
		Log:         l,
	}
	return notifier.NewRunner(l, cons, uc)
}

func main() {
	cfgPath := flag.String("config", "config/email-notifier.yaml", "path to config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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
	l.Info("starting email-notifier",
		zap.Any("kafka_in", cfg.In),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
		zap.String("smtp_addr", cfg.SMTP.Addr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(rootCtx, cfg.OTEL.AsOTELConfig(cfg.App))
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.NewDB(rootCtx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, l, obs.HealthCheck{Name: "db", Fn: db.Ping})

	// kafka
	cons := kafka.BootstrapConsumer(rootCtx, &kafka.ConsumerConfig{
		Brokers: cfg.In.Brokers,
		GroupID: cfg.In.GroupID,
		Topic:   cfg.In.Topic,
		Logger:  l,
	}, l)
	defer func() { _ = cons.Close() }()

	runner := wiring(db, cfg, cons, l)
	if err := runner.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("runner error", zap.Error(err))
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
