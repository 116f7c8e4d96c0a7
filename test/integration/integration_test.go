//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/readystackgo/rsgo/internal/config"
	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/docker"
	"github.com/readystackgo/rsgo/internal/engine"
	"github.com/readystackgo/rsgo/internal/health"
	"github.com/readystackgo/rsgo/internal/logging"
	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/readystackgo/rsgo/internal/monitor"
	"github.com/readystackgo/rsgo/internal/orchestrator"
	"github.com/readystackgo/rsgo/internal/store/boltstore"
	"github.com/readystackgo/rsgo/internal/store/sqlitestore"
)

const stackManifest = `
manifestVersion: "1"
stackVersion: 1.0.0
contexts:
  web:
    image: nginx
    version: 1.27-alpine
`

// TestIntegrationDeployMonitorRemove deploys a one-container stack on a real
// Docker daemon, captures its health and removes it again.
//
// Prerequisites:
//   - Docker daemon reachable through TEST_DOCKER_HOST or DOCKER_HOST
//
// Run with: go test -tags=integration -v ./test/integration/...
func TestIntegrationDeployMonitorRemove(t *testing.T) {
	logger := logging.NewWithLevel(getEnv("TEST_LOG_LEVEL", "warn"))

	client, err := docker.NewDockerClient(os.Getenv("TEST_DOCKER_HOST"), 30*time.Second, docker.WithLogger(logger))
	if err != nil {
		t.Fatalf("create docker client: %v", err)
	}
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}

	dataDir := t.TempDir()
	store, err := boltstore.Open(dataDir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	db, err := sqlitestore.Open(filepath.Join(dataDir, "snapshots.db"))
	if err != nil {
		t.Fatalf("open snapshots: %v", err)
	}
	defer db.Close()

	settings := config.NewFileStore(filepath.Join(dataDir, "config"), logger)
	if err := settings.SaveSystem(context.Background(), config.SystemConfig{
		OrganizationID:       "org-it",
		OrganizationName:     "Integration",
		DefaultEnvironmentID: "env-it",
	}); err != nil {
		t.Fatalf("save system config: %v", err)
	}

	deployments := boltstore.NewDeploymentRepository(store)
	snapshots := sqlitestore.NewSnapshotRepository(db, nil)
	stacks := orchestrator.NewStackService(engine.New(client, settings, logger), deployments, logger)

	stackName := fmt.Sprintf("rsgo-it-%d", time.Now().Unix())
	m, err := manifest.Parse([]byte(stackManifest))
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	var id deployment.ID
	t.Cleanup(func() {
		if id != "" {
			_, _ = stacks.Remove(context.Background(), id)
		}
	})

	t.Run("Deploy", func(t *testing.T) {
		resp, err := stacks.Deploy(ctx, orchestrator.StackRequest{
			EnvironmentID: "env-it",
			StackName:     stackName,
			Manifest:      m,
			DeployedBy:    "integration",
		})
		if err != nil {
			t.Fatalf("deploy: %v", err)
		}
		id = resp.Deployment.ID()
		if !resp.Succeeded() {
			t.Fatalf("deployment failed: %s", resp.Deployment.ErrorMessage())
		}

		ctr, err := client.GetContainerByName(ctx, stackName+"-web")
		if err != nil || ctr == nil {
			t.Fatalf("expected container %s-web, got %v, %v", stackName, ctr, err)
		}
		if ctr.Labels[docker.LabelStack] != stackName {
			t.Fatalf("unexpected stack label: %v", ctr.Labels)
		}
	})

	t.Run("Monitor", func(t *testing.T) {
		if id == "" {
			t.Skip("deploy did not run")
		}
		mon := monitor.New(logger, time.Minute, client, deployments, snapshots,
			monitor.WithOrganization("org-it"),
		)
		if err := mon.RunOnce(ctx); err != nil {
			t.Fatalf("run once: %v", err)
		}

		latest, err := snapshots.GetLatestForDeployment(ctx, string(id))
		if err != nil {
			t.Fatalf("latest snapshot: %v", err)
		}
		if latest.Overall() == health.StatusUnhealthy {
			t.Fatalf("expected stack not to be unhealthy: %+v", latest.Self())
		}
		if len(latest.Self().Services) != 1 {
			t.Fatalf("expected one service, got %+v", latest.Self())
		}
	})

	t.Run("Remove", func(t *testing.T) {
		if id == "" {
			t.Skip("deploy did not run")
		}
		d, err := stacks.Remove(ctx, id)
		if err != nil {
			t.Fatalf("remove: %v", err)
		}
		if d.Status() != deployment.StatusRemoved {
			t.Fatalf("expected removed deployment, got %s", d.Status())
		}
		id = ""

		ctr, err := client.GetContainerByName(ctx, stackName+"-web")
		if err != nil {
			t.Fatalf("lookup container: %v", err)
		}
		if ctr != nil {
			t.Fatalf("expected container to be gone, found %s", ctr.ID)
		}
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
