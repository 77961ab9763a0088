// Package metrics exposes Prometheus metrics and a health endpoint for the
// paper-trading engine.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"papertrader/internal/logger"
)

// Metrics holds all Prometheus collectors. Each process (or test) builds
// its own registry, so New can be called repeatedly.
type Metrics struct {
	Registry *prometheus.Registry

	PollCyclesTotal  prometheus.Counter
	TradesTotal      *prometheus.CounterVec // label: side (buy|sell)
	FetchErrorsTotal prometheus.Counter
	FetchDuration    prometheus.Histogram

	BacktestsTotal      prometheus.Counter
	BacktestErrorsTotal prometheus.Counter
	BacktestDuration    prometheus.Histogram

	ActiveSymbols prometheus.Gauge
	PaperBalance  prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PollCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_poll_cycles_total",
			Help: "Completed live polling cycles across all symbols.",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_trades_total",
			Help: "Simulated trades executed, by side.",
		}, []string{"side"}),
		FetchErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_fetch_errors_total",
			Help: "Candle fetch failures (live and backtest).",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_fetch_duration_seconds",
			Help:    "Candle fetch latency.",
			Buckets: prometheus.DefBuckets,
		}),
		BacktestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_backtests_total",
			Help: "Completed backtest runs per (symbol, timeframe) pair.",
		}),
		BacktestErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_backtest_errors_total",
			Help: "Backtest runs that degraded to an error summary.",
		}),
		BacktestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_backtest_duration_seconds",
			Help:    "Wall time per backtest run.",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_active_symbols",
			Help: "Symbols currently being paper-traded.",
		}),
		PaperBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_paper_balance_usdt",
			Help: "Current simulated USDT balance.",
		}),
	}

	m.Registry.MustRegister(
		m.PollCyclesTotal,
		m.TradesTotal,
		m.FetchErrorsTotal,
		m.FetchDuration,
		m.BacktestsTotal,
		m.BacktestErrorsTotal,
		m.BacktestDuration,
		m.ActiveSymbols,
		m.PaperBalance,
	)
	return m
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	srv       *http.Server
	startedAt time.Time
}

// NewServer creates the metrics and health server.
func NewServer(addr string, m *Metrics) *Server {
	s := &Server{startedAt: time.Now()}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"uptime": time.Since(s.startedAt).Round(time.Second).String(),
		})
	})

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		logger.Info("[metrics] server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	_ = s.srv.Shutdown(ctx)
}
