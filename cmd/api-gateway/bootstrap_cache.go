package main

import (
	"context"

	config "github.com/torsoroso16/api-project/internal/config/api-gateway"
	"github.com/torsoroso16/api-project/internal/domain/cache"
	"github.com/torsoroso16/api-project/internal/repository/memory"
	redisrepo "github.com/torsoroso16/api-project/internal/repository/redis"
	"go.uber.org/zap"
)

type sweepingCache interface {
	cache.Cache
	cache.Sweeper
}

// initCache falls back to the in-process cache when redis is disabled. That
// is only safe with a single api-gateway replica.
func initCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sweepingCache, func() error, error) {
	if !cfg.Redis.Enabled {
		logger.Warn("redis disabled, using in-process cache")
		return memory.NewCache(), func() error { return nil }, nil
	}
	rdb, err := redisrepo.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	return redisrepo.NewCache(rdb), rdb.Close, nil
}
