package monitor

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/health"
	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/readystackgo/rsgo/internal/observer"
	"github.com/rs/zerolog"
)

type observed struct {
	settings  manifest.ObserverSettings
	observer  observer.Observer
	lastCheck time.Time
}

// applyMaintenance polls the deployment's observer when its interval elapsed
// and switches a running deployment between Normal and Maintenance. It returns
// the deployment as it should be captured.
func (m *Monitor) applyMaintenance(ctx context.Context, d *deployment.Deployment, logger zerolog.Logger) (*deployment.Deployment, error) {
	if m.observerSource == nil || m.modes == nil {
		return d, nil
	}
	settings := m.observerSource(d)
	if settings == nil {
		m.dropObserver(d.ID())
		return d, nil
	}

	entry, err := m.observerFor(d.ID(), *settings)
	if err != nil {
		return d, err
	}
	now := m.now()
	if !entry.lastCheck.IsZero() && now.Sub(entry.lastCheck) < entry.observer.Interval() {
		return d, nil
	}
	entry.lastCheck = now

	result, err := entry.observer.Observe(ctx)
	if err != nil {
		return d, fmt.Errorf("observe: %w", err)
	}
	if d.Status() != deployment.StatusRunning {
		return d, nil
	}

	var target health.OperationMode
	switch {
	case result.InMaintenance && d.OperationMode() == health.ModeNormal:
		target = health.ModeMaintenance
	case !result.InMaintenance && d.OperationMode() == health.ModeMaintenance:
		target = health.ModeNormal
	default:
		return d, nil
	}

	updated, err := m.modes.ChangeOperationMode(ctx, d.ID(), target)
	if err != nil {
		return d, fmt.Errorf("change mode to %s: %w", target, err)
	}
	logger.Info().
		Str("from", string(d.OperationMode())).
		Str("to", string(target)).
		Str("observed", result.Value).
		Msg("operation mode changed by maintenance observer")
	return updated, nil
}

// observerFor returns the cached observer of a deployment, rebuilding it when
// the settings changed.
func (m *Monitor) observerFor(id deployment.ID, settings manifest.ObserverSettings) (*observed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.observers[id]; ok {
		if reflect.DeepEqual(entry.settings, settings) {
			return entry, nil
		}
		_ = entry.observer.Close()
		delete(m.observers, id)
	}
	obs, err := observer.New(settings, m.observerOpts...)
	if err != nil {
		return nil, err
	}
	entry := &observed{settings: settings, observer: obs}
	m.observers[id] = entry
	return entry, nil
}

func (m *Monitor) dropObserver(id deployment.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.observers[id]; ok {
		_ = entry.observer.Close()
		delete(m.observers, id)
	}
}

// dropObservers closes observers of deployments that are no longer active.
func (m *Monitor) dropObservers(active map[deployment.ID]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.observers {
		if _, ok := active[id]; !ok {
			_ = entry.observer.Close()
			delete(m.observers, id)
		}
	}
}

func (m *Monitor) closeObservers() {
	m.dropObservers(nil)
}
