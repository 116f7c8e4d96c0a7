package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/productdeployment"
)

const productDeploymentEntity = "product deployment"

// ProductDeploymentRepository implements productdeployment.Repository.
type ProductDeploymentRepository struct {
	store *Store
	unit  unitOfWork[*productdeployment.ProductDeployment]
}

var _ productdeployment.Repository = (*ProductDeploymentRepository)(nil)

// NewProductDeploymentRepository returns a repository over store.
func NewProductDeploymentRepository(store *Store) *ProductDeploymentRepository {
	return &ProductDeploymentRepository{store: store}
}

func (r *ProductDeploymentRepository) NextIdentity() productdeployment.ID {
	return productdeployment.NewID()
}

func (r *ProductDeploymentRepository) Add(p *productdeployment.ProductDeployment) {
	r.unit.stage(string(p.ID()), p, true)
}

func (r *ProductDeploymentRepository) Update(p *productdeployment.ProductDeployment) {
	r.unit.stage(string(p.ID()), p, false)
}

func (r *ProductDeploymentRepository) Get(ctx context.Context, id productdeployment.ID) (*productdeployment.ProductDeployment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var state productdeployment.State
	if err := r.store.get(bucketProductDeployments, productDeploymentEntity, string(id), &state); err != nil {
		return nil, err
	}
	return productdeployment.FromState(state), nil
}

func (r *ProductDeploymentRepository) GetLatestForProduct(ctx context.Context, environmentID domain.EnvironmentID, productGroupID string) (*productdeployment.ProductDeployment, error) {
	all, err := r.list(ctx, func(s productdeployment.State) bool {
		return s.EnvironmentID == environmentID && s.ProductGroupID == productGroupID
	})
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%s for product %q in %q: %w", productDeploymentEntity, productGroupID, environmentID, domain.ErrNotFound)
	}
	return all[len(all)-1], nil
}

func (r *ProductDeploymentRepository) ListByEnvironment(ctx context.Context, environmentID domain.EnvironmentID) ([]*productdeployment.ProductDeployment, error) {
	return r.list(ctx, func(s productdeployment.State) bool {
		return s.EnvironmentID == environmentID
	})
}

func (r *ProductDeploymentRepository) SaveChanges(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.unit.commit(r.store.db, bucketProductDeployments, productDeploymentEntity, func(p *productdeployment.ProductDeployment, version int64) ([]byte, error) {
		state := p.State()
		state.Version = version
		return json.Marshal(state)
	})
}

func (r *ProductDeploymentRepository) list(ctx context.Context, match func(productdeployment.State) bool) ([]*productdeployment.ProductDeployment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var states []productdeployment.State
	err := r.store.each(bucketProductDeployments, func(data []byte) error {
		var state productdeployment.State
		if err := json.Unmarshal(data, &state); err != nil {
			return err
		}
		if match(state) {
			states = append(states, state)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list product deployments: %w", err)
	}
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})
	out := make([]*productdeployment.ProductDeployment, 0, len(states))
	for _, s := range states {
		out = append(out, productdeployment.FromState(s))
	}
	return out, nil
}
