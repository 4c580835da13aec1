package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ExpiredTokenDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type MarkerSweeper interface {
	Sweep(ctx context.Context, maxTTL time.Duration) (int, error)
}

type OutboxPurger interface {
	PurgeDelivered(ctx context.Context, before time.Time) (int64, error)
}

// Intervals configures the cleanup jobs.
type Intervals struct {
	ExpiredTokens time.Duration `mapstructure:"expired_tokens"`
	Markers       time.Duration `mapstructure:"markers"`
	Outbox        time.Duration `mapstructure:"outbox"`
	RunAtStart    bool          `mapstructure:"run_at_start"`
}

var DefaultIntervals = Intervals{
	ExpiredTokens: 24 * time.Hour,
	Markers:       7 * 24 * time.Hour,
	Outbox:        24 * time.Hour,
}

const DefaultOutboxRetention = 7 * 24 * time.Hour

type Usecase struct {
	Ledger  ExpiredTokenDeleter
	Markers MarkerSweeper
	// MaxTTL bounds how long any marker may live: the refresh token lifetime.
	MaxTTL time.Duration
	// Outbox is optional; delivered rows older than OutboxRetention go.
	Outbox          OutboxPurger
	OutboxRetention time.Duration
	Now             func() time.Time
	Log             *zap.Logger
}

func NewUC(ledger ExpiredTokenDeleter, markers MarkerSweeper, maxTTL time.Duration, log *zap.Logger) *Usecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{
		Ledger:          ledger,
		Markers:         markers,
		MaxTTL:          maxTTL,
		OutboxRetention: DefaultOutboxRetention,
		Now:             func() time.Time { return time.Now().UTC() },
		Log:             log,
	}
}

func (u *Usecase) SweepExpiredTokens(ctx context.Context) error {
	ctx, span := otel.Tracer("scheduler.uc").Start(ctx, "scheduler.sweep_expired_tokens")
	defer span.End()

	n, err := u.Ledger.DeleteExpired(ctx, u.Now())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete expired tokens: %w", err)
	}
	span.SetAttributes(attribute.Int64("tokens.deleted", n))
	if n > 0 {
		u.Log.Info("expired refresh tokens deleted", zap.Int64("count", n))
	}
	return nil
}

func (u *Usecase) SweepRevocationMarkers(ctx context.Context) error {
	if u.Markers == nil {
		return nil
	}
	ctx, span := otel.Tracer("scheduler.uc").Start(ctx, "scheduler.sweep_markers")
	defer span.End()

	n, err := u.Markers.Sweep(ctx, u.MaxTTL)
	span.SetAttributes(attribute.Int("markers.touched", n))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("sweep markers: %w", err)
	}
	if n > 0 {
		u.Log.Info("stale cache entries swept", zap.Int("count", n))
	}
	return nil
}

func (u *Usecase) PurgeDeliveredOutbox(ctx context.Context) error {
	if u.Outbox == nil {
		return nil
	}
	ctx, span := otel.Tracer("scheduler.uc").Start(ctx, "scheduler.purge_outbox")
	defer span.End()

	n, err := u.Outbox.PurgeDelivered(ctx, u.Now().Add(-u.OutboxRetention))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("purge outbox: %w", err)
	}
	span.SetAttributes(attribute.Int64("outbox.purged", n))
	if n > 0 {
		u.Log.Info("delivered outbox rows purged", zap.Int64("count", n))
	}
	return nil
}

func (u *Usecase) Tasks(iv Intervals) []Task {
	if iv.ExpiredTokens <= 0 {
		iv.ExpiredTokens = DefaultIntervals.ExpiredTokens
	}
	if iv.Markers <= 0 {
		iv.Markers = DefaultIntervals.Markers
	}
	if iv.Outbox <= 0 {
		iv.Outbox = DefaultIntervals.Outbox
	}
	tasks := []Task{
		{Name: "expired_tokens", Every: iv.ExpiredTokens, RunAtStart: iv.RunAtStart, Fn: u.SweepExpiredTokens},
		{Name: "revocation_markers", Every: iv.Markers, RunAtStart: iv.RunAtStart, Fn: u.SweepRevocationMarkers},
	}
	if u.Outbox != nil {
		tasks = append(tasks, Task{Name: "outbox_purge", Every: iv.Outbox, RunAtStart: iv.RunAtStart, Fn: u.PurgeDeliveredOutbox})
	}
	return tasks
}
