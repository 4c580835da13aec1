package email_notifier_config

import (
	"time"

	common "github.com/torsoroso16/api-project/internal/config/common"
	pginfra "github.com/torsoroso16/api-project/internal/repository/postgres"
)

type KafkaIn struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type SMTP struct {
	Addr               string        `mapstructure:"addr"`
	From               string        `mapstructure:"from"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	UseTLS             bool          `mapstructure:"use_tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout"`
	SubjPrefix         string        `mapstructure:"subj_prefix"`
}

type Server struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type Config struct {
	App         common.App     `mapstructure:"app"`
	DB          pginfra.Config `mapstructure:"db"`
	In          KafkaIn        `mapstructure:"kafka_in"`
	SMTP        SMTP           `mapstructure:"smtp"`
	Server      Server         `mapstructure:"server"`
	FrontendURL string         `mapstructure:"frontend_url"`
	Log         common.Log     `mapstructure:"log"`
	OTEL        common.OTEL    `mapstructure:"otel"`
}
