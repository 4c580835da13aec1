package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Backoff interface {
	// Next is the pause after the given zero-based failed attempt.
	Next(attempt int) time.Duration
}

// Exponential doubles from Base up to Max. Jitter in [0,1] spreads each
// pause by up to that fraction either way.
type Exponential struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func (b Exponential) Next(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt && (b.Max <= 0 || d < b.Max); i++ {
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d = time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*b.Jitter))
	}
	return d
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying regardless of the policy.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

type Policy struct {
	Name     string
	Attempts int
	Backoff  Backoff
	// AttemptTimeout bounds each call of fn when positive.
	AttemptTimeout time.Duration
	Retryable      func(error) bool
	OnAttempt      func(attempt int, err error)
	OnExhaust      func(lastErr error)
}

const (
	outcomeOK        = "ok"
	outcomePermanent = "permanent"
	outcomeExhausted = "exhausted"
	outcomeCanceled  = "canceled"
)

var (
	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_attempts_total",
		Help: "Calls made under a retry policy, first try included.",
	}, []string{"name"})
	retryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_operations_total",
		Help: "Retried operations by final outcome.",
	}, []string{"name", "outcome"})
	retryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retry_duration_seconds",
		Help:    "Wall time of an operation including every attempt and pause.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})
)

// Do calls fn until it succeeds, returns a permanent or non-retryable
// error, runs out of attempts, or ctx ends.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) (err error) {
	name := p.Name
	if name == "" {
		name = "default"
	}
	attempts := max(p.Attempts, 1)
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(err error) bool { return err != nil }
	}

	start := time.Now()
	outcome := outcomeOK
	defer func() {
		retryOutcomes.WithLabelValues(name, outcome).Inc()
		retryLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	span := trace.SpanFromContext(ctx)
	for i := 0; ; i++ {
		retryAttempts.WithLabelValues(name).Inc()
		if err = call(ctx, p.AttemptTimeout, fn); err == nil {
			return nil
		}
		if p.OnAttempt != nil {
			p.OnAttempt(i, err)
		}
		span.AddEvent("retry.attempt", trace.WithAttributes(
			attribute.String("retry.name", name),
			attribute.Int("retry.attempt", i+1),
			attribute.String("retry.error", err.Error()),
		))

		switch {
		case IsPermanent(err) || !retryable(err):
			outcome = outcomePermanent
		case i == attempts-1:
			outcome = outcomeExhausted
		}
		if outcome != outcomeOK {
			if p.OnExhaust != nil {
				p.OnExhaust(err)
			}
			return err
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff.Next(i)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			outcome = outcomeCanceled
			return ctx.Err()
		case <-t.C:
		}
	}
}

func call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
