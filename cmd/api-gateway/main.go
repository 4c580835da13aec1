package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	authn "github.com/torsoroso16/api-project/internal/auth"
	config "github.com/torsoroso16/api-project/internal/config/api-gateway"
	"github.com/torsoroso16/api-project/internal/domain/cache"
	pg "github.com/torsoroso16/api-project/internal/repository/postgres"
	"github.com/torsoroso16/api-project/internal/services/api-gateway/auth"
	"github.com/torsoroso16/api-project/internal/services/scheduler"
	schedrepo "github.com/torsoroso16/api-project/internal/services/scheduler/repo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := flag.String("config", "config/api-gateway.yaml", "path to config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting api-gateway", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	otelShutdown, err := initOTel(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := initDB(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	kv, closeCache, err := initCache(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("cache connect", zap.Error(err))
	}
	defer func() { _ = closeCache() }()

	ev := initEvents(rootCtx, cfg, db, logger)
	defer ev.Close()

	codec, err := authn.NewCodec(cfg.CodecConfig())
	if err != nil {
		logger.Fatal("token codec", zap.Error(err))
	}
	ledger := pg.NewRefreshTokenRepo(db)
	uc, err := auth.NewUseCase(auth.Deps{
		Users:  pg.NewUserRepo(db),
		Ledger: ledger,
		Cache:  kv,
		Hasher: authn.NewHasher(cfg.HasherParams()),
		Codec:  codec,
		Mailer: ev.publisher,
		Events: auth.NewSecurityLog(logger, ev.publisher, nil),
		Tx:     pg.NewTransactor(db, logger),
		Log:    logger,
	}, cfg.EngineConfig())
	if err != nil {
		logger.Fatal("auth usecase", zap.Error(err))
	}

	grpcServer, grpcLn, err := buildGRPCServer(cfg, logger, uc)
	if err != nil {
		logger.Fatal("build grpc", zap.Error(err))
	}
	grpcErrCh := make(chan error, 1)
	go func() { grpcErrCh <- serveGRPC(grpcServer, grpcLn, logger) }()

	httpSrv, gwConn, err := buildHTTPServer(cfg, logger, db, cachePing(kv))
	if err != nil {
		logger.Fatal("build http", zap.Error(err))
	}
	defer func() { _ = gwConn.Close() }()
	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, logger) }()

	// background workers stop with rootCtx
	bgCtx, bgCancel := context.WithCancel(rootCtx)
	bg, bgCtx := errgroup.WithContext(bgCtx)
	bg.Go(func() error { return ev.relay.Run(bgCtx) })
	if cfg.Cleanup.Enabled {
		sweeps := scheduler.NewUC(
			schedrepo.Ledger{L: ledger},
			schedrepo.Markers{S: kv, Prefixes: auth.SweptPrefixes, Bounds: auth.SweepBounds(cfg.Auth.LoginFailureWindow)},
			codec.RefreshTTL(),
			logger,
		)
		sweeps.Outbox = ev.store
		runner := scheduler.New(logger, sweeps.Tasks(cfg.Cleanup.Intervals)...)
		bg.Go(func() error { return runner.Run(bgCtx) })
	}

	var runErr error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal", zap.String("reason", "context canceled"))
	case runErr = <-grpcErrCh:
		if runErr != nil {
			logger.Error("grpc serve", zap.Error(runErr))
		}
	case runErr = <-httpErrCh:
		if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(runErr))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	_ = httpSrv.Shutdown(shCtx)
	grpcServer.GracefulStop()

	bgCancel()
	if err := bg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("background worker", zap.Error(err))
	}
	logger.Info("bye")
}

func cachePing(kv cache.Cache) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := kv.Exists(ctx, "healthz")
		return err
	}
}
