// Package server exposes the health and metrics endpoints of rsgo serve.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/readystackgo/rsgo/internal/healthcheck"
	"github.com/readystackgo/rsgo/internal/metrics"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Config selects the endpoints to serve. A zero port disables its server;
// equal ports share one listener.
type Config struct {
	PollInterval time.Duration
	Tracker      *healthcheck.Tracker
	Metrics      *metrics.Metrics
	Docker       healthcheck.Pinger
	HealthPort   int
	MetricsPort  int
}

type listener struct {
	port    int
	label   string
	handler http.Handler
}

// Start launches the configured HTTP servers. They shut down when ctx ends.
func Start(ctx context.Context, logger zerolog.Logger, cfg Config) {
	for _, l := range listeners(cfg) {
		startServer(ctx, logger, l)
	}
}

func listeners(cfg Config) []listener {
	if cfg.HealthPort == 0 && cfg.MetricsPort == 0 {
		return nil
	}
	if cfg.HealthPort > 0 && cfg.HealthPort == cfg.MetricsPort {
		mux := http.NewServeMux()
		registerHealthRoutes(mux, cfg)
		registerMetricsRoute(mux, cfg.Metrics)
		return []listener{{port: cfg.HealthPort, label: "health/metrics", handler: mux}}
	}

	var out []listener
	if cfg.HealthPort > 0 {
		mux := http.NewServeMux()
		registerHealthRoutes(mux, cfg)
		out = append(out, listener{port: cfg.HealthPort, label: "health", handler: mux})
	}
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		registerMetricsRoute(mux, cfg.Metrics)
		out = append(out, listener{port: cfg.MetricsPort, label: "metrics", handler: mux})
	}
	return out
}

func registerHealthRoutes(mux *http.ServeMux, cfg Config) {
	mux.HandleFunc("/healthz", healthcheck.HealthHandler(cfg.Tracker, cfg.PollInterval))
	mux.HandleFunc("/readyz", healthcheck.ReadyHandler(cfg.Tracker, cfg.Docker))
}

func registerMetricsRoute(mux *http.ServeMux, metricsCollector *metrics.Metrics) {
	if metricsCollector == nil {
		return
	}
	mux.Handle("/metrics", metricsCollector.Handler())
}

func startServer(ctx context.Context, logger zerolog.Logger, l listener) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", l.port),
		Handler:           l.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("server", l.label).Int("port", l.port).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("server", l.label).Int("port", l.port).Msg("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("server", l.label).Int("port", l.port).Msg("http server shutdown failed")
		}
	}()
}
