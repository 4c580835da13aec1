package auth

import (
	"context"
	"time"

	domainauth "github.com/torsoroso16/api-project/internal/domain/auth"
	"github.com/torsoroso16/api-project/internal/obs"
	"go.uber.org/zap"
)

// EventPublisher fans security events out beyond the process log.
type EventPublisher interface {
	PublishSecurityEvent(ctx context.Context, ev domainauth.SecurityEvent) error
}

// SecurityLog records security events. LogEvent never fails and never panics.
type SecurityLog struct {
	log *zap.Logger
	pub EventPublisher
	now func() time.Time
}

func NewSecurityLog(log *zap.Logger, pub EventPublisher, now func() time.Time) *SecurityLog {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SecurityLog{log: log.With(zap.String("component", "security")), pub: pub, now: now}
}

func (s *SecurityLog) LogEvent(ctx context.Context, kind domainauth.EventKind, userID *int64, details map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("security event dropped", zap.String("event", string(kind)), zap.Any("panic", r))
		}
	}()

	ev := domainauth.SecurityEvent{Kind: kind, UserID: userID, Details: details, Timestamp: s.now()}
	if ev.Details == nil {
		ev.Details = map[string]any{}
	}

	fields := []zap.Field{
		zap.String("event", string(kind)),
		zap.Any("details", ev.Details),
		zap.Time("timestamp", ev.Timestamp),
	}
	if userID != nil {
		fields = append(fields, zap.Int64("user_id", *userID))
	}
	obs.WithTrace(ctx, s.log).Warn("security event", fields...)
	securityEventsTotal.WithLabelValues(string(kind)).Inc()

	if s.pub == nil {
		return
	}
	if err := s.pub.PublishSecurityEvent(ctx, ev); err != nil {
		s.log.Warn("publish security event", zap.String("event", string(kind)), zap.Error(err))
	}
}
