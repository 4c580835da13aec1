package notifier

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/torsoroso16/api-project/internal/domain/notification"
	kafkax "github.com/torsoroso16/api-project/internal/repository/kafka"
	"go.uber.org/zap"
)

var (
	mConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "email_notifier_messages_consumed_total",
		Help: "Email requests consumed",
	}, []string{"kind"})
	mSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "email_notifier_emails_sent_total",
		Help: "Emails sent",
	}, []string{"kind"})
	mErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_notifier_errors_total",
		Help: "Undecodable messages and delivery failures",
	})
)

type Runner struct {
	log  *zap.Logger
	cons *kafkax.Consumer
	uc   *Handler
}

func NewRunner(log *zap.Logger, cons *kafkax.Consumer, uc *Handler) *Runner {
	return &Runner{log: log.With(zap.String("component", "email-notifier")), cons: cons, uc: uc}
}

func (r *Runner) Run(ctx context.Context) error {
	if err := r.cons.Consume(ctx, r.handler()); err != nil && !errors.Is(err, context.Canceled) {
		mErrors.Inc()
		r.log.Warn("kafka consume", zap.Error(err))
		return err
	}
	return ctx.Err()
}

func (r *Runner) handler() kafkax.Handler {
	return kafkax.JSONHandler(
		func(ctx context.Context, _ []byte, ev *notification.EmailRequested) error {
			kind := string(ev.Kind)
			mConsumed.WithLabelValues(kind).Inc()
			if err := r.uc.HandleEmailRequested(ctx, *ev); err != nil {
				mErrors.Inc()
				return err
			}
			mSent.WithLabelValues(kind).Inc()
			return nil
		},
		func(err error) {
			mErrors.Inc()
			r.log.Warn("skip undecodable email request", zap.Error(err))
		},
	)
}
