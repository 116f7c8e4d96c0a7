// Package observer checks external maintenance flags for deployed stacks.
package observer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaintenanceValue is the observed value that means "in maintenance".
	DefaultMaintenanceValue = "true"
	// DefaultPollInterval applies when the settings carry no interval.
	DefaultPollInterval = 30 * time.Second
	defaultHTTPTimeout  = 10 * time.Second
)

// Result is the outcome of one observation.
type Result struct {
	InMaintenance bool
	Value         string
	CheckedAt     time.Time
}

// Observer reports whether a stack is in maintenance.
type Observer interface {
	Observe(ctx context.Context) (Result, error)
	Interval() time.Duration
	Close() error
}

// Option customizes observers built by New.
type Option func(*options)

type options struct {
	logger      zerolog.Logger
	now         func() time.Time
	httpTimeout time.Duration
}

// WithLogger sets the logger used by observers.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the clock stamped on results.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHTTPTimeout sets the request timeout of HTTP observers.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.httpTimeout = d
		}
	}
}

// New builds the observer variant selected by settings.Type.
func New(settings manifest.ObserverSettings, opts ...Option) (Observer, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("observer settings: %w", err)
	}
	o := options{logger: zerolog.Nop(), now: time.Now, httpTimeout: defaultHTTPTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	b := base{
		interval: settings.PollInterval,
		value:    settings.MaintenanceValue,
		now:      o.now,
	}
	if b.interval <= 0 {
		b.interval = DefaultPollInterval
	}
	if strings.TrimSpace(b.value) == "" {
		b.value = DefaultMaintenanceValue
	}

	switch settings.Type {
	case manifest.ObserverSQL:
		return newSQLObserver(b, *settings.SQL, o.logger.With().Str("observer", "sql").Logger())
	case manifest.ObserverHTTP:
		return newHTTPObserver(b, *settings.HTTP, o.httpTimeout, o.logger.With().Str("observer", "http").Logger()), nil
	case manifest.ObserverFile:
		return newFileObserver(b, *settings.File), nil
	default:
		return nil, fmt.Errorf("unknown observer type %q", settings.Type)
	}
}

type base struct {
	interval time.Duration
	value    string
	now      func() time.Time
}

func (b base) Interval() time.Duration { return b.interval }

func (b base) result(value string) Result {
	value = strings.TrimSpace(value)
	return Result{
		InMaintenance: strings.EqualFold(value, b.value),
		Value:         value,
		CheckedAt:     b.now().UTC(),
	}
}
