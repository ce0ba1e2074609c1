// Package telemetry records run metrics on a private Prometheus registry and
// serves them over HTTP.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cryptosim"

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Backtest runs by final status",
		},
		[]string{"status"},
	)

	runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a backtest run",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"status"},
	)

	barsProcessed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bars_processed_total",
			Help:      "Bars replayed by symbol",
		},
		[]string{"symbol"},
	)

	tradesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Closed trades by symbol and exit reason",
		},
		[]string{"symbol", "reason"},
	)

	skippedSignals = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_signals_total",
			Help:      "Signals that did not become executions, by reason",
		},
		[]string{"reason"},
	)

	evaluationErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_errors_total",
			Help:      "Condition evaluations that failed and counted as no signal",
		},
		[]string{"strategy"},
	)

	finalEquity = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "final_equity",
			Help:      "Ending equity of the latest run per strategy",
		},
		[]string{"strategy"},
	)

	callbackPanics = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_panics_total",
			Help:      "Recovered panics from run callbacks",
		},
	)
)

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// Registry exposes the registry for tests and custom exporters.
func Registry() *prometheus.Registry {
	return registry
}

// RecordRun records the final status and duration of a run.
func RecordRun(status string, duration time.Duration) {
	status = label(status)
	runsTotal.WithLabelValues(status).Inc()
	runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordBars adds n replayed bars for symbol.
func RecordBars(symbol string, n int) {
	if n <= 0 {
		return
	}
	barsProcessed.WithLabelValues(label(symbol)).Add(float64(n))
}

// RecordTrade counts one closed trade.
func RecordTrade(symbol, reason string) {
	tradesTotal.WithLabelValues(label(symbol), label(reason)).Inc()
}

// RecordSkippedSignal counts a signal that produced no execution.
func RecordSkippedSignal(reason string) {
	skippedSignals.WithLabelValues(label(reason)).Inc()
}

// RecordEvaluationError counts a failed condition evaluation.
func RecordEvaluationError(strategyID string) {
	evaluationErrors.WithLabelValues(label(strategyID)).Inc()
}

// RecordFinalEquity stores the ending equity of a strategy's latest run.
func RecordFinalEquity(strategyID string, equity float64) {
	finalEquity.WithLabelValues(label(strategyID)).Set(equity)
}

// RecordCallbackPanic records a recovered panic in callbacks.
func RecordCallbackPanic() {
	callbackPanics.Inc()
}

// Server exposes metrics and health endpoints.
type Server struct {
	srv        *http.Server
	readyState atomic.Bool
}

// NewServer creates a new telemetry server. An empty addr disables it.
func NewServer(addr string) *Server {
	if addr == "" {
		return nil
	}

	server := &Server{}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if server.readyState.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	server.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server
}

// Handler returns the server's routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	if s == nil || s.srv == nil {
		return http.NotFoundHandler()
	}
	return s.srv.Handler
}

// Start begins serving metrics and health endpoints in a separate goroutine.
// Listen errors are delivered on the returned channel.
func (s *Server) Start() <-chan error {
	errc := make(chan error, 1)
	if s == nil || s.srv == nil {
		close(errc)
		return errc
	}
	go func() {
		defer close(errc)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	return errc
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// SetReady updates the readiness state exposed on /readyz.
func (s *Server) SetReady(ready bool) {
	if s == nil {
		return
	}
	s.readyState.Store(ready)
}
