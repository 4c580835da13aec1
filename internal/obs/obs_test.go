package obs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactCore_MasksCredentialFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(RedactCore(core)).With(zap.String("Authorization", "Bearer abc"))

	log.Info("login",
		zap.String("email", "a@x.com"),
		zap.String("password", "hunter22"),
		zap.String("refresh_token", "eyJ..."),
		zap.Int("token", 3),
	)
	log.Debug("dropped", zap.String("password", "x"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "a@x.com", fields["email"])
	assert.Equal(t, redacted, fields["password"])
	assert.Equal(t, redacted, fields["refresh_token"])
	assert.Equal(t, redacted, fields["Authorization"])
	assert.EqualValues(t, 3, fields["token"])
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "chatty", Service: "storefront/test"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestWithTrace(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithTrace(context.Background(), base).Info("plain")

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
	})
	WithTrace(trace.ContextWithSpanContext(context.Background(), sc), base).Info("traced")

	all := logs.All()
	require.Len(t, all, 2)
	assert.NotContains(t, all[0].ContextMap(), "trace_id")
	assert.Equal(t, sc.TraceID().String(), all[1].ContextMap()["trace_id"])
	assert.Equal(t, true, all[1].ContextMap()["trace_sampled"])
}

func TestHealthHandler(t *testing.T) {
	up := HealthCheck{Name: "db", Fn: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "cache", Fn: func(context.Context) error { return errors.New("dial tcp: refused") }}

	rec := httptest.NewRecorder()
	HealthHandler(up).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthHandler(up, down).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	raw := rec.Body.String()
	assert.NotContains(t, raw, "refused")
	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	assert.Equal(t, map[string]string{"db": "up", "cache": "down"}, body)
}
