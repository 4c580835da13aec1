package main

import (
	"context"

	config "github.com/torsoroso16/api-project/internal/config/api-gateway"
	"github.com/torsoroso16/api-project/internal/obs/retry"
	"github.com/torsoroso16/api-project/internal/outbox"
	kafkaRepo "github.com/torsoroso16/api-project/internal/repository/kafka"
	pg "github.com/torsoroso16/api-project/internal/repository/postgres"
	"go.uber.org/zap"
)

type events struct {
	store     *pg.OutboxRepo
	publisher *outbox.Publisher
	relay     *outbox.Runner
	closers   []func() error
}

// initEvents wires the outbox: the engine writes rows, the relay moves them
// to Kafka.
func initEvents(ctx context.Context, cfg *config.Config, db *pg.DB, logger *zap.Logger) *events {
	repo := pg.NewOutboxRepo(db)

	emailProd := kafkaRepo.BootstrapProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.EmailTopic, logger)
	secProd := kafkaRepo.BootstrapProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.SecurityTopic, logger)

	dispatch := outbox.MakeGlobalOutboxHandler(
		kafkaRepo.NewEmailEventsKafka(emailProd),
		kafkaRepo.NewSecurityEventsKafka(secProd),
		retry.DefaultKafkaPolicy(logger),
	)
	return &events{
		store:     repo,
		publisher: outbox.NewPublisher(repo),
		relay:     outbox.NewOutboxRunner(logger, repo, dispatch, cfg.Outbox),
		closers:   []func() error{emailProd.Close, secProd.Close},
	}
}

func (e *events) Close() {
	for _, c := range e.closers {
		_ = c()
	}
}
