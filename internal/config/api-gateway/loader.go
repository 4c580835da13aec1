package api_gateway_config

import (
	common "github.com/torsoroso16/api-project/internal/config/common"
	kafkaRepo "github.com/torsoroso16/api-project/internal/repository/kafka"
)

func Load(path string) (*Config, error) {
	v := common.New(path, "api-gateway")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.min_conns", 5)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "2s")
	v.SetDefault("redis.read_timeout", "500ms")
	v.SetDefault("redis.write_timeout", "500ms")

	v.SetDefault("kafka.email_topic", kafkaRepo.TopicEmailRequested)
	v.SetDefault("kafka.security_topic", kafkaRepo.TopicSecurityEvents)

	v.SetDefault("outbox.workers", 1)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.wait_time", "1s")
	v.SetDefault("outbox.in_progress_ttl", "1m")

	v.SetDefault("auth.access_secret", "")
	v.SetDefault("auth.refresh_secret", "")
	v.SetDefault("auth.access_ttl", "15m")
	v.SetDefault("auth.refresh_ttl", "720h")
	v.SetDefault("auth.issuer", "storefront")
	v.SetDefault("auth.reset_ttl", "1h")
	v.SetDefault("auth.default_role", "customer")
	v.SetDefault("auth.login_failure_threshold", 5)
	v.SetDefault("auth.login_failure_window", "15m")
	v.SetDefault("auth.argon2.memory_kib", 64*1024)
	v.SetDefault("auth.argon2.iterations", 3)
	v.SetDefault("auth.argon2.parallelism", 1)
	v.SetDefault("auth.argon2.salt_length", 16)
	v.SetDefault("auth.argon2.key_length", 32)

	v.SetDefault("cookie.name", "refreshToken")
	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.path", "/")
	v.SetDefault("cookie.secure", true)
	v.SetDefault("cookie.max_age", "720h")

	v.SetDefault("rate_limit.requests_per_window", 20)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.trusted_proxies", []string{"127.0.0.1", "::1"})

	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.expired_tokens", "24h")
	v.SetDefault("cleanup.markers", "168h")
	v.SetDefault("cleanup.outbox", "24h")
	v.SetDefault("cleanup.run_at_start", false)

	var cfg Config
	if err := common.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
