package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/torsoroso16/api-project/internal/api/authv1"
	config "github.com/torsoroso16/api-project/internal/config/api-gateway"
	"github.com/torsoroso16/api-project/internal/obs"
	pg "github.com/torsoroso16/api-project/internal/repository/postgres"
	"github.com/torsoroso16/api-project/internal/services/api-gateway/auth"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// loopbackTarget turns a listen address like ":9090" into something dialable.
func loopbackTarget(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, db *pg.DB, pingCache func(context.Context) error) (*http.Server, *grpc.ClientConn, error) {
	dial := append(obs.GRPCDialOpts(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	conn, err := grpc.NewClient(loopbackTarget(cfg.Server.GRPCAddr), dial...)
	if err != nil {
		return nil, nil, err
	}

	mux := runtime.NewServeMux()
	if err := auth.RegisterGateway(mux, authv1.NewAuthServiceClient(conn)); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	root := http.NewServeMux()
	root.Handle("/", otelhttp.NewHandler(mux, "gateway"))
	root.Handle("/metrics", obs.MetricsHandler())
	root.Handle("/healthz", obs.HealthHandler(
		obs.HealthCheck{Name: "db", Fn: db.Ping},
		obs.HealthCheck{Name: "cache", Fn: pingCache},
	))

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           cors(cfg.Server.CORSOrigins)(root),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return httpSrv, conn, nil
}

func serveHTTP(srv *http.Server, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}
