package scheduler_config

import (
	"errors"

	common "github.com/torsoroso16/api-project/internal/config/common"
)

func Load(path string) (*Config, error) {
	v := common.New(path, "scheduler")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 4)
	v.SetDefault("redis.dial_timeout", "2s")
	v.SetDefault("redis.read_timeout", "1s")
	v.SetDefault("redis.write_timeout", "1s")

	v.SetDefault("sched.expired_tokens", "24h")
	v.SetDefault("sched.markers", "168h")
	v.SetDefault("sched.outbox", "24h")
	v.SetDefault("sched.run_at_start", true)
	v.SetDefault("sched.metrics_addr", ":8082")
	v.SetDefault("sched.refresh_ttl", "720h")
	v.SetDefault("sched.login_failure_window", "15m")

	var cfg Config
	if err := common.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Sched.RefreshTTL <= 0 {
		return nil, errors.New("sched.refresh_ttl must be positive")
	}
	return &cfg, nil
}
