package obs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthCheck is one dependency probed by /healthz.
type HealthCheck struct {
	Name string
	Fn   func(ctx context.Context) error
}

const healthTimeout = 500 * time.Millisecond

func MetricsHandler() http.Handler { return promhttp.Handler() }

// HealthHandler answers 200 when every check passes and 503 otherwise. The
// body names each dependency and its state; error text is not exposed.
func HealthHandler(checks ...HealthCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		code := http.StatusOK
		report := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				report[c.Name] = "down"
				code = http.StatusServiceUnavailable
				continue
			}
			report[c.Name] = "up"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
}

// BootstrapMetricsServer serves /metrics and /healthz for the background
// workers that have no HTTP surface of their own.
func BootstrapMetricsServer(addr string, l *zap.Logger, checks ...HealthCheck) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	mux.Handle("/healthz", HealthHandler(checks...))
	ms := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      3 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		l.Info("metrics listening", zap.String("addr", addr))
		if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics server error", zap.Error(err))
		}
	}()
	return ms
}
