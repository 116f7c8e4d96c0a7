package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/readystackgo/rsgo/internal/catalog"
	"github.com/readystackgo/rsgo/internal/config"
	"github.com/readystackgo/rsgo/internal/docker"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/engine"
	"github.com/readystackgo/rsgo/internal/logging"
	"github.com/readystackgo/rsgo/internal/metrics"
	"github.com/readystackgo/rsgo/internal/notify"
	"github.com/readystackgo/rsgo/internal/orchestrator"
	"github.com/readystackgo/rsgo/internal/store/boltstore"
	"github.com/readystackgo/rsgo/internal/store/sqlitestore"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	configDirName    = "config"
	snapshotFileName = "snapshots.db"
)

// app holds the collaborators shared by the commands. State stores are only
// opened by commands that need them; bbolt allows a single process at a time.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	notifier notify.Notifier
	settings *config.FileStore
	catalog  *catalog.ProductCache
	watcher  *catalog.Watcher
	docker   *docker.DockerClient
	engine   *engine.Engine

	store       *boltstore.Store
	db          *sql.DB
	deployments *boltstore.DeploymentRepository
	products    *boltstore.ProductDeploymentRepository
	snapshots   *sqlitestore.SnapshotRepository
	stacks      *orchestrator.StackService
	productSvc  *orchestrator.ProductService
}

// newApp loads configuration and builds the stateless collaborators. Console
// logs go to stderr so command output on stdout stays readable.
func newApp(ctx context.Context, console bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewWithLevel(cfg.LogLevel)
	if console {
		logger = logging.NewWriter(os.Stderr, cfg.LogLevel, true)
	}
	m := metrics.New()

	notifier, err := buildNotifier(logger, cfg, m)
	if err != nil {
		return nil, err
	}

	cache := catalog.NewProductCache()
	var watcher *catalog.Watcher
	if cfg.CatalogFile != "" {
		watcher = catalog.NewWatcher(cache, cfg.CatalogFile, logging.WithComponent(logger, "catalog"))
		if _, err := watcher.Check(ctx); err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
	}

	client, err := docker.NewDockerClient(cfg.DockerHost, cfg.DockerTimeout,
		docker.WithLogger(logging.WithComponent(logger, "docker")),
	)
	if err != nil {
		return nil, err
	}

	settings := config.NewFileStore(filepath.Join(cfg.DataDir, configDirName), logging.WithComponent(logger, "config"))

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		notifier: notifier,
		settings: settings,
		catalog:  cache,
		watcher:  watcher,
		docker:   client,
		engine:   engine.New(client, settings, logging.WithComponent(logger, "engine"), engine.WithMetrics(m)),
	}, nil
}

// openState opens the deployment store and the snapshot database and builds
// the orchestration services on top of them.
func (a *app) openState() error {
	store, err := boltstore.Open(a.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open deployment store: %w", err)
	}
	db, err := sqlitestore.Open(filepath.Join(a.cfg.DataDir, snapshotFileName))
	if err != nil {
		store.Close()
		return fmt.Errorf("open snapshot store: %w", err)
	}

	a.store = store
	a.db = db
	a.deployments = boltstore.NewDeploymentRepository(store)
	a.products = boltstore.NewProductDeploymentRepository(store)
	a.snapshots = sqlitestore.NewSnapshotRepository(db, nil)

	opts := []orchestrator.Option{
		orchestrator.WithNotifier(a.notifier),
		orchestrator.WithMetrics(a.metrics),
	}
	a.stacks = orchestrator.NewStackService(a.engine, a.deployments, logging.WithComponent(a.logger, "stacks"), opts...)
	a.productSvc = orchestrator.NewProductService(a.stacks, a.products, a.catalog, logging.WithComponent(a.logger, "products"), opts...)
	return nil
}

func (a *app) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.docker != nil {
		errs = append(errs, a.docker.Close())
	}
	return errors.Join(errs...)
}

// environment resolves the --env flag, falling back to the configured
// default environment.
func (a *app) environment(ctx context.Context, cmd *cobra.Command) (domain.EnvironmentID, error) {
	env, _ := cmd.Flags().GetString("env")
	if env != "" {
		return domain.EnvironmentID(env), nil
	}
	system, err := a.settings.System(ctx)
	if err != nil {
		return "", err
	}
	if system.DefaultEnvironmentID == "" {
		return "", domain.InvalidArgument("no environment given and no default environment configured")
	}
	return domain.EnvironmentID(system.DefaultEnvironmentID), nil
}

// buildNotifier assembles the notification chain from configuration.
func buildNotifier(logger zerolog.Logger, cfg config.Config, m *metrics.Metrics) (notify.Notifier, error) {
	logger = logging.WithComponent(logger, "notify")
	if cfg.DryRun {
		return notify.NewInstrumented(notify.NewDryRunNotifier(logger), m), nil
	}

	var targets []notify.Notifier
	if cfg.SlackWebhookURL != "" {
		targets = append(targets, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
		if err != nil {
			return nil, fmt.Errorf("configure webhook notifier: %w", err)
		}
		targets = append(targets, webhook)
	}

	switch len(targets) {
	case 0:
		return notify.NewNoop(logger, "notifications disabled: no slack or webhook url configured"), nil
	case 1:
		return notify.NewInstrumented(targets[0], m), nil
	default:
		return notify.NewInstrumented(notify.NewMultiNotifier(targets...), m), nil
	}
}
