package productdeployment

import (
	"context"

	"github.com/readystackgo/rsgo/internal/domain"
)

// Repository stores ProductDeployment aggregates with staged writes, like
// deployment.Repository.
type Repository interface {
	NextIdentity() ID
	Add(p *ProductDeployment)
	Update(p *ProductDeployment)
	Get(ctx context.Context, id ID) (*ProductDeployment, error)
	// GetLatestForProduct returns the most recently created deployment of a
	// product group in an environment.
	GetLatestForProduct(ctx context.Context, environmentID domain.EnvironmentID, productGroupID string) (*ProductDeployment, error)
	ListByEnvironment(ctx context.Context, environmentID domain.EnvironmentID) ([]*ProductDeployment, error)
	SaveChanges(ctx context.Context) error
}
