// Package engine turns release manifests into ordered deployment plans and
// executes them against a Docker daemon.
package engine

import (
	"time"

	"github.com/readystackgo/rsgo/internal/config"
	"github.com/readystackgo/rsgo/internal/docker"
	"github.com/readystackgo/rsgo/internal/metrics"
	"github.com/rs/zerolog"
)

// Engine plans and executes stack deployments.
type Engine struct {
	docker  docker.Client
	store   config.Store
	logger  zerolog.Logger
	metrics *metrics.Metrics
	strict  bool
	now     func() time.Time
}

// Option customizes engine behavior.
type Option func(*Engine)

// WithMetrics records step outcomes and pull fallbacks.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStrictDependencies makes circular or missing dependencies a planning
// error instead of falling back to input order.
func WithStrictDependencies(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithClock overrides the time source used for release bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs an Engine.
func New(client docker.Client, store config.Store, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		docker: client,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
