package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/torsoroso16/api-project/internal/domain/auth"
	"github.com/torsoroso16/api-project/internal/domain/kafka"
	"github.com/torsoroso16/api-project/internal/domain/notification"
	"github.com/torsoroso16/api-project/internal/domain/outbox"
	"github.com/torsoroso16/api-project/internal/obs/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Outbox handler failures after retries",
	}, []string{"kind"})
)

func instrument(kind string, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle")
		span.SetAttributes(attribute.String("outbox.kind", kind))
		defer span.End()

		start := time.Now()
		err := retry.Do(ctx, pol, func(ctx context.Context) error { return h(ctx, data) })
		outboxHandlerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(kind).Inc()
		}
		return err
	}
}

// MakeGlobalOutboxHandler routes each kind to its Kafka publisher. A nil
// publisher leaves that kind without a handler.
func MakeGlobalOutboxHandler(email kafka.EmailEvents, security kafka.SecurityEvents, pol retry.Policy) outbox.GlobalHandler {
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		switch {
		case kind == outbox.KindEmailRequested && email != nil:
			return instrument(kind.String(), func(ctx context.Context, data []byte) error {
				var ev notification.EmailRequested
				if err := json.Unmarshal(data, &ev); err != nil {
					return retry.Permanent(fmt.Errorf("unmarshal email payload: %w", err))
				}
				return email.PublishEmailRequested(ctx, ev)
			}, pol), nil
		case kind == outbox.KindSecurityEvent && security != nil:
			return instrument(kind.String(), func(ctx context.Context, data []byte) error {
				var ev auth.SecurityEvent
				if err := json.Unmarshal(data, &ev); err != nil {
					return retry.Permanent(fmt.Errorf("unmarshal security event: %w", err))
				}
				return security.PublishSecurityEvent(ctx, ev)
			}, pol), nil
		default:
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
	}
}
