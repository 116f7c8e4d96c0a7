// Package deploymentrepotest provides contract tests for
// [deployment.Repository] implementations.
package deploymentrepotest

import (
	"context"
	"errors"
	"testing"

	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/domain"
)

// Factory creates a fresh [deployment.Repository] for each test. The second
// return value opens another repository over the same storage, simulating a
// concurrent writer.
type Factory func(t *testing.T) (deployment.Repository, deployment.Repository)

// Run exercises the [deployment.Repository] contract.
func Run(t *testing.T, factory Factory) {
	start := func(t *testing.T, repo deployment.Repository, env domain.EnvironmentID, stack string) *deployment.Deployment {
		t.Helper()
		d, err := deployment.Start(repo.NextIdentity(), env, stack, stack, "alice", deployment.WithStackVersion("1.0.0"))
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		return d
	}

	t.Run("AddAndGet", func(t *testing.T) {
		repo, _ := factory(t)
		ctx := context.Background()
		d := start(t, repo, "env-1", "shop")

		repo.Add(d)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("SaveChanges: %v", err)
		}
		if d.Version() != 1 {
			t.Errorf("Version after insert = %d, want 1", d.Version())
		}

		got, err := repo.Get(ctx, d.ID())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.StackName() != "shop" || got.Status() != deployment.StatusPending {
			t.Errorf("Get = %s/%s, want shop/Pending", got.StackName(), got.Status())
		}
		if got.Version() != 1 {
			t.Errorf("loaded Version = %d, want 1", got.Version())
		}
		if len(got.PendingEvents()) != 0 {
			t.Errorf("loaded aggregate must not carry pending events")
		}
	})

	t.Run("AddDuplicate", func(t *testing.T) {
		repo, _ := factory(t)
		ctx := context.Background()
		d := start(t, repo, "env-1", "shop")
		repo.Add(d)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("SaveChanges: %v", err)
		}

		repo.Add(deployment.FromState(d.State()))
		if err := repo.SaveChanges(ctx); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("second Add: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo, _ := factory(t)
		_, err := repo.Get(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateIncrementsVersion", func(t *testing.T) {
		repo, _ := factory(t)
		ctx := context.Background()
		d := start(t, repo, "env-1", "shop")
		repo.Add(d)
		_ = repo.SaveChanges(ctx)

		if err := d.MarkAsInstalling(); err != nil {
			t.Fatalf("MarkAsInstalling: %v", err)
		}
		repo.Update(d)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("SaveChanges: %v", err)
		}
		if d.Version() != 2 {
			t.Errorf("Version after update = %d, want 2", d.Version())
		}

		got, _ := repo.Get(ctx, d.ID())
		if got.Status() != deployment.StatusInstalling {
			t.Errorf("Status after update = %s, want Installing", got.Status())
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		repo, _ := factory(t)
		d := start(t, repo, "env-1", "ghost")
		repo.Update(d)
		if err := repo.SaveChanges(context.Background()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Update: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ConcurrentUpdateConflicts", func(t *testing.T) {
		repo, other := factory(t)
		ctx := context.Background()
		d := start(t, repo, "env-1", "shop")
		repo.Add(d)
		_ = repo.SaveChanges(ctx)

		first, _ := repo.Get(ctx, d.ID())
		second, _ := other.Get(ctx, d.ID())

		_ = first.MarkAsInstalling()
		repo.Update(first)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("first SaveChanges: %v", err)
		}

		_ = second.RequestCancellation("stale")
		other.Update(second)
		err := other.SaveChanges(ctx)
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			t.Fatalf("second SaveChanges: got %v, want ErrConcurrencyConflict", err)
		}
		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) || !conflict.Retryable() {
			t.Fatalf("expected retryable *domain.ConflictError, got %T", err)
		}

		got, _ := repo.Get(ctx, d.ID())
		if got.IsCancellationRequested() {
			t.Errorf("conflicting write must not be applied")
		}
	})

	t.Run("GetByStack", func(t *testing.T) {
		repo, _ := factory(t)
		ctx := context.Background()
		old := start(t, repo, "env-1", "shop")
		_ = old.MarkAsRemoved()
		current := start(t, repo, "env-1", "shop")
		otherEnv := start(t, repo, "env-2", "shop")
		repo.Add(old)
		repo.Add(current)
		repo.Add(otherEnv)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("SaveChanges: %v", err)
		}

		got, err := repo.GetByStack(ctx, "env-1", "shop")
		if err != nil {
			t.Fatalf("GetByStack: %v", err)
		}
		if got.ID() != current.ID() {
			t.Errorf("GetByStack = %s, want %s", got.ID(), current.ID())
		}

		if _, err := repo.GetByStack(ctx, "env-1", "blog"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetByStack missing: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListByEnvironmentAndActive", func(t *testing.T) {
		repo, _ := factory(t)
		ctx := context.Background()
		pending := start(t, repo, "env-1", "a")
		installing := start(t, repo, "env-1", "b")
		_ = installing.MarkAsInstalling()
		elsewhere := start(t, repo, "env-2", "c")
		_ = elsewhere.MarkAsInstalling()
		repo.Add(pending)
		repo.Add(installing)
		repo.Add(elsewhere)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("SaveChanges: %v", err)
		}

		env1, err := repo.ListByEnvironment(ctx, "env-1")
		if err != nil {
			t.Fatalf("ListByEnvironment: %v", err)
		}
		if len(env1) != 2 {
			t.Errorf("ListByEnvironment = %d, want 2", len(env1))
		}

		active, err := repo.ListActive(ctx)
		if err != nil {
			t.Fatalf("ListActive: %v", err)
		}
		if len(active) != 2 {
			t.Errorf("ListActive = %d, want 2", len(active))
		}
	})

	t.Run("SaveChangesWithoutChanges", func(t *testing.T) {
		repo, _ := factory(t)
		if err := repo.SaveChanges(context.Background()); err != nil {
			t.Fatalf("SaveChanges: %v", err)
		}
	})
}
