package main

import (
	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/healthcheck"
	"github.com/readystackgo/rsgo/internal/logging"
	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/readystackgo/rsgo/internal/monitor"
	"github.com/readystackgo/rsgo/internal/observer"
	"github.com/readystackgo/rsgo/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Monitor deployed stacks and serve health and metrics endpoints",
	Long: `Serve captures a health snapshot of every active deployment on each poll
interval, notifies on health transitions, applies maintenance observers of
catalog stacks and keeps product deployments in sync with their stacks.

The deployment store is held for as long as serve runs; stop it before
running deploy, upgrade or remove.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.openState(); err != nil {
		return err
	}
	system, err := a.settings.System(ctx)
	if err != nil {
		return err
	}

	logger := a.logger
	logger.Info().
		Str("version", Version).
		Dur("poll_interval", a.cfg.PollInterval).
		Dur("snapshot_retention", a.cfg.SnapshotRetention).
		Bool("dry_run", a.cfg.DryRun).
		Msg("rsgo starting")

	if err := a.docker.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("docker is not reachable yet")
	}

	if a.watcher != nil {
		go a.watcher.Run(ctx, a.cfg.PollInterval)
	}

	tracker := healthcheck.NewTracker()
	server.Start(ctx, logging.WithComponent(logger, "server"), server.Config{
		PollInterval: a.cfg.PollInterval,
		Tracker:      tracker,
		Metrics:      a.metrics,
		Docker:       a.docker,
		HealthPort:   a.cfg.HealthPort,
		MetricsPort:  a.cfg.MetricsPort,
	})

	m := monitor.New(logging.WithComponent(logger, "monitor"), a.cfg.PollInterval, a.docker, a.deployments, a.snapshots,
		monitor.WithRetention(a.cfg.SnapshotRetention),
		monitor.WithOrganization(domain.OrganizationID(system.OrganizationID)),
		monitor.WithNotifier(a.notifier),
		monitor.WithMetrics(a.metrics),
		monitor.WithTracker(tracker),
		monitor.WithMaintenance(a.catalogObservers, a.stacks,
			observer.WithLogger(logging.WithComponent(logger, "observer")),
		),
		monitor.WithProductSync(a.productSvc),
		monitor.WithInfraCheck(monitor.DiskCheck(a.cfg.DataDir)),
	)
	return m.Run(ctx)
}

// catalogObservers resolves the maintenance observer of a deployment from the
// catalog stack it was deployed from.
func (a *app) catalogObservers(d *deployment.Deployment) *manifest.ObserverSettings {
	if d.StackID() == "" {
		return nil
	}
	stack, ok := a.catalog.GetStack(d.StackID())
	if !ok || stack.Manifest == nil {
		return nil
	}
	return stack.Manifest.MaintenanceObserver
}
