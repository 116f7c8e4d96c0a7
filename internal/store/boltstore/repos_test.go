package boltstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/deployment/deploymentrepotest"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/productdeployment"
	"github.com/readystackgo/rsgo/internal/store/boltstore"
)

func openStore(t *testing.T) *boltstore.Store {
	t.Helper()
	store, err := boltstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDeploymentRepository(t *testing.T) {
	deploymentrepotest.Run(t, func(t *testing.T) (deployment.Repository, deployment.Repository) {
		store := openStore(t)
		return boltstore.NewDeploymentRepository(store), boltstore.NewDeploymentRepository(store)
	})
}

func newProductDeployment(t *testing.T, repo productdeployment.Repository, group, version string) *productdeployment.ProductDeployment {
	t.Helper()
	pd, err := productdeployment.InitiateDeployment(productdeployment.DeployParams{
		ID:             repo.NextIdentity(),
		EnvironmentID:  "env-1",
		ProductGroupID: group,
		ProductName:    group,
		ProductVersion: version,
		Stacks:         []productdeployment.StackSpec{{Name: "db"}, {Name: "api"}},
	})
	if err != nil {
		t.Fatalf("InitiateDeployment: %v", err)
	}
	return pd
}

func TestProductDeploymentRepository_RoundTrip(t *testing.T) {
	store := openStore(t)
	repo := boltstore.NewProductDeploymentRepository(store)
	ctx := context.Background()

	pd := newProductDeployment(t, repo, "shop", "1.0.0")
	if err := pd.StartStack("db", "dep-db"); err != nil {
		t.Fatalf("StartStack: %v", err)
	}
	repo.Add(pd)
	if err := repo.SaveChanges(ctx); err != nil {
		t.Fatalf("SaveChanges: %v", err)
	}

	got, err := repo.Get(ctx, pd.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	stack, ok := got.Stack("db")
	if !ok || stack.Status() != productdeployment.StackDeploying || stack.DeploymentID() != "dep-db" {
		t.Fatalf("unexpected db stack after reload: %+v", stack)
	}
	if got.Version() != 1 || got.TotalStacks() != 2 {
		t.Fatalf("unexpected reload: version %d stacks %d", got.Version(), got.TotalStacks())
	}
}

func TestProductDeploymentRepository_LatestForProduct(t *testing.T) {
	store := openStore(t)
	repo := boltstore.NewProductDeploymentRepository(store)
	ctx := context.Background()

	first := newProductDeployment(t, repo, "shop", "1.0.0")
	repo.Add(first)
	if err := repo.SaveChanges(ctx); err != nil {
		t.Fatalf("SaveChanges: %v", err)
	}
	second := newProductDeployment(t, repo, "shop", "1.1.0")
	blog := newProductDeployment(t, repo, "blog", "3.0.0")
	repo.Add(second)
	repo.Add(blog)
	if err := repo.SaveChanges(ctx); err != nil {
		t.Fatalf("SaveChanges: %v", err)
	}

	latest, err := repo.GetLatestForProduct(ctx, "env-1", "shop")
	if err != nil {
		t.Fatalf("GetLatestForProduct: %v", err)
	}
	if latest.ProductVersion() != "1.1.0" {
		t.Fatalf("latest = %s, want 1.1.0", latest.ProductVersion())
	}

	all, err := repo.ListByEnvironment(ctx, "env-1")
	if err != nil || len(all) != 3 {
		t.Fatalf("ListByEnvironment = %d %v, want 3", len(all), err)
	}

	if _, err := repo.GetLatestForProduct(ctx, "env-2", "shop"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProductDeploymentRepository_Conflict(t *testing.T) {
	store := openStore(t)
	repo := boltstore.NewProductDeploymentRepository(store)
	other := boltstore.NewProductDeploymentRepository(store)
	ctx := context.Background()

	pd := newProductDeployment(t, repo, "shop", "1.0.0")
	repo.Add(pd)
	if err := repo.SaveChanges(ctx); err != nil {
		t.Fatalf("SaveChanges: %v", err)
	}

	a, _ := repo.Get(ctx, pd.ID())
	b, _ := other.Get(ctx, pd.ID())
	_ = a.StartStack("db", "dep-1")
	_ = b.StartStack("db", "dep-2")

	repo.Update(a)
	if err := repo.SaveChanges(ctx); err != nil {
		t.Fatalf("first SaveChanges: %v", err)
	}
	other.Update(b)
	if err := other.SaveChanges(ctx); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
