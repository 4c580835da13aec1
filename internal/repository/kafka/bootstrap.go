package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func defaultSpec(topic string) TopicSpec {
	return TopicSpec{Name: topic, NumPartitions: 3, ReplicationFactor: 1, MaxWait: 5 * time.Second}
}

// BootstrapConsumer makes sure the topic exists before joining the group.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, logger *zap.Logger) *Consumer {
	_ = EnsureTopic(ctx, cfg.Brokers, defaultSpec(cfg.Topic), logger)
	return NewConsumer(cfg)
}

func BootstrapProducer(ctx context.Context, brokers []string, topic string, logger *zap.Logger) *Producer {
	_ = EnsureTopic(ctx, brokers, defaultSpec(topic), logger)
	return NewProducer(brokers, topic).WithLogger(logger)
}
