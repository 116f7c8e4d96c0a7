package deployment

import (
	"context"

	"github.com/readystackgo/rsgo/internal/domain"
)

// Repository stores Deployment aggregates. Add and Update stage changes that
// SaveChanges commits atomically. SaveChanges returns *domain.ConflictError
// when a staged aggregate was modified since it was loaded.
type Repository interface {
	NextIdentity() ID
	Add(d *Deployment)
	Update(d *Deployment)
	Get(ctx context.Context, id ID) (*Deployment, error)
	GetByStack(ctx context.Context, environmentID domain.EnvironmentID, stackName string) (*Deployment, error)
	ListByEnvironment(ctx context.Context, environmentID domain.EnvironmentID) ([]*Deployment, error)
	ListActive(ctx context.Context) ([]*Deployment, error)
	SaveChanges(ctx context.Context) error
}
