package scheduler_config

import (
	"time"

	common "github.com/torsoroso16/api-project/internal/config/common"
	pginfra "github.com/torsoroso16/api-project/internal/repository/postgres"
	redisinfra "github.com/torsoroso16/api-project/internal/repository/redis"
	"github.com/torsoroso16/api-project/internal/services/scheduler"
)

type SchedCfg struct {
	scheduler.Intervals `mapstructure:",squash"`
	MetricsAddr         string `mapstructure:"metrics_addr"`
	// RefreshTTL must match the api-gateway's: markers never outlive it.
	RefreshTTL         time.Duration `mapstructure:"refresh_ttl"`
	LoginFailureWindow time.Duration `mapstructure:"login_failure_window"`
}

type Config struct {
	App   common.App        `mapstructure:"app"`
	DB    pginfra.Config    `mapstructure:"db"`
	Redis redisinfra.Config `mapstructure:"redis"`
	Sched SchedCfg          `mapstructure:"sched"`
	Log   common.Log        `mapstructure:"log"`
	OTEL  common.OTEL       `mapstructure:"otel"`
}
