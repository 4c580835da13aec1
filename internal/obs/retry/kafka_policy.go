package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultKafkaPolicy retries a publish a handful of times inside one relay
// tick. Whatever is still failing is left for the next pick.
func DefaultKafkaPolicy(log *zap.Logger) Policy {
	if log == nil {
		log = zap.NewNop()
	}
	return Policy{
		Name:           "kafka_publish",
		Attempts:       4,
		Backoff:        Exponential{Base: 200 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2},
		AttemptTimeout: 10 * time.Second,
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			log.Warn("publish retry", zap.Int("attempt", i+1), zap.Error(err))
		},
		OnExhaust: func(err error) {
			if !errors.Is(err, context.Canceled) {
				log.Error("publish gave up", zap.Error(err))
			}
		},
	}
}
