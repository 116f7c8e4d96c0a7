// Package monitor runs the periodic health capture loop over active deployments.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/docker"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/health"
	"github.com/readystackgo/rsgo/internal/healthcheck"
	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/readystackgo/rsgo/internal/metrics"
	"github.com/readystackgo/rsgo/internal/notify"
	"github.com/readystackgo/rsgo/internal/observer"
	"github.com/readystackgo/rsgo/internal/transition"
	"github.com/rs/zerolog"
)

// Ticker is the minimal interface needed for driving the monitor loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// ModeChanger applies operation mode changes to deployments.
type ModeChanger interface {
	ChangeOperationMode(ctx context.Context, id deployment.ID, mode health.OperationMode) (*deployment.Deployment, error)
}

// ProductSyncer reconciles product deployments of an environment with the
// live status of their stacks.
type ProductSyncer interface {
	SyncEnvironment(ctx context.Context, environmentID domain.EnvironmentID) (int, error)
}

// ObserverSource returns the maintenance observer settings of a deployment,
// or nil when it has none.
type ObserverSource func(d *deployment.Deployment) *manifest.ObserverSettings

// Monitor captures health snapshots for every active deployment.
type Monitor struct {
	logger        zerolog.Logger
	pollInterval  time.Duration
	retention     time.Duration
	tickerFactory func(time.Duration) Ticker
	runOnce       func(context.Context) error
	now           func() time.Time

	docker         docker.Client
	deployments    deployment.Repository
	snapshots      health.SnapshotRepository
	organizationID domain.OrganizationID
	notifier       notify.Notifier
	metrics        *metrics.Metrics
	tracker        *healthcheck.Tracker
	modes          ModeChanger
	products       ProductSyncer
	observerSource ObserverSource
	observerOpts   []observer.Option
	infraCheck     InfraCheck

	mu        sync.Mutex
	observers map[deployment.ID]*observed
}

// Option customizes monitor behavior.
type Option func(*Monitor)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(m *Monitor) {
		m.tickerFactory = factory
	}
}

// WithRunOnce overrides the single-cycle execution step.
func WithRunOnce(runOnce func(context.Context) error) Option {
	return func(m *Monitor) {
		m.runOnce = runOnce
	}
}

// WithClock overrides the clock used for capture timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRetention prunes snapshots older than d at the end of every cycle.
func WithRetention(d time.Duration) Option {
	return func(m *Monitor) {
		m.retention = d
	}
}

// WithOrganization stamps snapshots with the organization id.
func WithOrganization(id domain.OrganizationID) Option {
	return func(m *Monitor) {
		m.organizationID = id
	}
}

// WithNotifier sends health transitions to n.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Monitor) {
		m.notifier = n
	}
}

// WithMetrics enables health metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

// WithTracker records every cycle for the health endpoints.
func WithTracker(t *healthcheck.Tracker) Option {
	return func(m *Monitor) {
		m.tracker = t
	}
}

// WithMaintenance enables maintenance observers. Deployments whose source
// returns settings are switched between Normal and Maintenance by modes.
func WithMaintenance(source ObserverSource, modes ModeChanger, opts ...observer.Option) Option {
	return func(m *Monitor) {
		m.observerSource = source
		m.modes = modes
		m.observerOpts = opts
	}
}

// WithProductSync reconciles product deployments after each capture.
func WithProductSync(products ProductSyncer) Option {
	return func(m *Monitor) {
		m.products = products
	}
}

// WithInfraCheck attaches infrastructure health to every snapshot.
func WithInfraCheck(check InfraCheck) Option {
	return func(m *Monitor) {
		m.infraCheck = check
	}
}

// New constructs a Monitor.
func New(logger zerolog.Logger, pollInterval time.Duration, client docker.Client, deployments deployment.Repository, snapshots health.SnapshotRepository, opts ...Option) *Monitor {
	m := &Monitor{
		logger:       logger,
		pollInterval: pollInterval,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
		now:         time.Now,
		docker:      client,
		deployments: deployments,
		snapshots:   snapshots,
		observers:   map[deployment.ID]*observed{},
	}
	m.runOnce = m.defaultRunOnce

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the main loop and blocks until the context is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	if m.pollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}
	defer m.closeObservers()

	if err := m.RunOnce(ctx); err != nil {
		m.logger.Error().Err(err).Msg("initial health cycle failed")
	}

	ticker := m.tickerFactory(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("monitor stopped")
			return nil
		case <-ticker.C():
			if err := m.RunOnce(ctx); err != nil {
				m.logger.Error().Err(err).Msg("health cycle failed")
			}
		}
	}
}

// RunOnce executes a single capture cycle.
func (m *Monitor) RunOnce(ctx context.Context) error {
	return m.runOnce(ctx)
}

func (m *Monitor) defaultRunOnce(ctx context.Context) (err error) {
	start := m.now()
	checked := 0
	defer func() {
		duration := m.now().Sub(start)
		m.metrics.ObserveCycleDuration(duration)
		m.tracker.RecordCycle(duration, checked, err)
	}()

	active, err := m.deployments.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active deployments: %w", err)
	}
	checked = len(active)
	infra := m.checkInfra(ctx)

	var errs []error
	environments := map[domain.EnvironmentID]struct{}{}
	seen := make(map[deployment.ID]struct{}, len(active))
	for _, d := range active {
		seen[d.ID()] = struct{}{}
		environments[d.EnvironmentID()] = struct{}{}
		if err := m.checkDeployment(ctx, d, infra); err != nil {
			errs = append(errs, wrapRuntime("check "+d.StackName(), err))
		}
	}
	m.dropObservers(seen)

	if m.products != nil {
		for env := range environments {
			changed, err := m.products.SyncEnvironment(ctx, env)
			if err != nil {
				errs = append(errs, wrapRuntime("sync products in "+string(env), err))
			}
			if changed > 0 {
				m.logger.Info().Str("environment", string(env)).Int("changed", changed).Msg("product status reconciled")
			}
		}
	}

	if m.retention > 0 {
		removed, err := m.snapshots.RemoveOlderThan(ctx, m.retention)
		if err != nil {
			errs = append(errs, wrapRuntime("prune snapshots", err))
		} else if removed > 0 {
			m.metrics.AddSnapshotsPruned(removed)
			m.logger.Debug().Int("removed", removed).Msg("pruned health snapshots")
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	m.metrics.SetLastSuccessfulCycleTimestamp(m.now())
	m.logger.Debug().Int("deployments", len(active)).Msg("health cycle completed")
	return nil
}

// checkDeployment applies the maintenance observer, captures a snapshot and
// reports a transition against the previous one.
func (m *Monitor) checkDeployment(ctx context.Context, d *deployment.Deployment, infra *health.InfraHealth) error {
	logger := m.logger.With().Str("stack", d.StackName()).Str("deployment_id", string(d.ID())).Logger()

	d, err := m.applyMaintenance(ctx, d, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("maintenance observer failed")
	}

	containers, err := m.docker.ListContainers(ctx, map[string]string{docker.LabelStack: d.StackName()})
	if err != nil {
		m.metrics.IncDockerAPIErrors()
		return fmt.Errorf("list containers: %w", err)
	}
	services, err := serviceHealth(d, containers, m.restartCounts(ctx, containers))
	if err != nil {
		return err
	}

	snapshot, err := health.Capture(health.CaptureParams{
		ID:             m.snapshots.NextIdentity(),
		OrganizationID: m.organizationID,
		EnvironmentID:  d.EnvironmentID(),
		DeploymentID:   string(d.ID()),
		StackName:      d.StackName(),
		CapturedAt:     m.now().UTC(),
		Mode:           d.OperationMode(),
		CurrentVersion: d.StackVersion(),
		TargetVersion:  d.TargetVersion(),
		Infra:          infra,
		Self:           health.NewSelfHealth(services),
	})
	if err != nil {
		return fmt.Errorf("capture snapshot: %w", err)
	}

	previous, err := m.snapshots.GetLatestForDeployment(ctx, string(d.ID()))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		previous = nil
	case err != nil:
		return fmt.Errorf("load previous snapshot: %w", err)
	}

	m.snapshots.Add(snapshot)
	if err := m.snapshots.SaveChanges(ctx); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	m.recordMetrics(snapshot)

	change, changed := transition.Detect(previous, snapshot)
	if !changed {
		return nil
	}
	m.logTransition(logger, change)
	if m.notifier != nil {
		if err := m.notifier.Notify(ctx, []domain.Event{change.Event()}); err != nil {
			logger.Warn().Err(err).Msg("failed to deliver health transition")
		}
	}
	return nil
}

// checkInfra runs the infrastructure check. Partial results are kept when
// some checks fail.
func (m *Monitor) checkInfra(ctx context.Context) *health.InfraHealth {
	if m.infraCheck == nil {
		return nil
	}
	infra, err := m.infraCheck(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("infrastructure check failed")
	}
	if infra == nil || infra.Empty() {
		return nil
	}
	return infra
}

func (m *Monitor) recordMetrics(s *health.Snapshot) {
	m.metrics.SetStackHealth(string(s.EnvironmentID()), s.StackName(), s.Overall().Severity())
	counts := map[health.Status]int{}
	for _, service := range s.Self().Services {
		counts[service.Status]++
	}
	for _, status := range []health.Status{health.StatusHealthy, health.StatusUnknown, health.StatusDegraded, health.StatusUnhealthy} {
		m.metrics.SetServicesTotal(s.StackName(), status.String(), counts[status])
	}
}

func (m *Monitor) logTransition(logger zerolog.Logger, change transition.StackTransition) {
	event := logger.Info()
	switch change.CurrentOverall {
	case health.StatusUnhealthy:
		event = logger.Error()
	case health.StatusDegraded, health.StatusUnknown:
		event = logger.Warn()
	}
	event.
		Str("previous_status", change.PreviousOverall.String()).
		Str("current_status", change.CurrentOverall.String()).
		Str("mode", string(change.CurrentMode)).
		Int("services_changed", len(change.Services)).
		Msg("stack health transition detected")
}
