package main

import (
	"net"

	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/torsoroso16/api-project/internal/api/authv1"
	config "github.com/torsoroso16/api-project/internal/config/api-gateway"
	"github.com/torsoroso16/api-project/internal/obs"
	"github.com/torsoroso16/api-project/internal/services/api-gateway/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

func buildGRPCServer(cfg *config.Config, logger *zap.Logger, uc *auth.Usecase) (*grpc.Server, net.Listener, error) {
	authSrv := auth.NewServer(uc, auth.Opts{Logger: logger, Cookie: cfg.CookieOpts()})

	grpcMetrics := grpcprometheus.NewServerMetrics()
	grpcMetrics.EnableHandlingTimeHistogram()

	opts := obs.GRPCServerOpts()
	opts = append(opts,
		grpc.ChainUnaryInterceptor(
			grpcMetrics.UnaryServerInterceptor(),
			auth.UnaryRateLimitInterceptor(cfg.RateLimitConfig()),
			auth.UnaryAuthInterceptor(uc.ParseAccess),
		),
		grpc.ChainStreamInterceptor(
			grpcMetrics.StreamServerInterceptor(),
		),
	)

	grpcServer := grpc.NewServer(opts...)
	authv1.RegisterAuthServiceServer(grpcServer, authSrv)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	ln, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return nil, nil, err
	}
	return grpcServer, ln, nil
}

func serveGRPC(s *grpc.Server, ln net.Listener, logger *zap.Logger) error {
	logger.Info("grpc listening", zap.String("addr", ln.Addr().String()))
	return s.Serve(ln)
}
