package email_notifier_config

import (
	"errors"

	common "github.com/torsoroso16/api-project/internal/config/common"
	kafkaRepo "github.com/torsoroso16/api-project/internal/repository/kafka"
)

func Load(path string) (*Config, error) {
	v := common.New(path, "email-notifier")

	v.SetDefault("kafka_in.brokers", []string{"localhost:9094"})
	v.SetDefault("kafka_in.topic", kafkaRepo.TopicEmailRequested)
	v.SetDefault("kafka_in.group_id", "email-notifier")

	v.SetDefault("smtp.addr", "localhost:1025")
	v.SetDefault("smtp.from", "noreply@storefront.local")
	v.SetDefault("smtp.use_tls", false)
	v.SetDefault("smtp.insecure_skip_verify", false)
	v.SetDefault("smtp.timeout", "5s")
	v.SetDefault("smtp.subj_prefix", "[Storefront]")

	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("server.metrics_addr", ":8084")

	var cfg Config
	if err := common.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if cfg.FrontendURL == "" {
		return nil, errors.New("frontend_url is required")
	}
	return &cfg, nil
}
