package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/domain"
)

const deploymentEntity = "deployment"

// DeploymentRepository implements deployment.Repository.
type DeploymentRepository struct {
	store *Store
	unit  unitOfWork[*deployment.Deployment]
}

var _ deployment.Repository = (*DeploymentRepository)(nil)

// NewDeploymentRepository returns a repository over store.
func NewDeploymentRepository(store *Store) *DeploymentRepository {
	return &DeploymentRepository{store: store}
}

func (r *DeploymentRepository) NextIdentity() deployment.ID {
	return deployment.NewID()
}

func (r *DeploymentRepository) Add(d *deployment.Deployment) {
	r.unit.stage(string(d.ID()), d, true)
}

func (r *DeploymentRepository) Update(d *deployment.Deployment) {
	r.unit.stage(string(d.ID()), d, false)
}

func (r *DeploymentRepository) Get(ctx context.Context, id deployment.ID) (*deployment.Deployment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var state deployment.State
	if err := r.store.get(bucketDeployments, deploymentEntity, string(id), &state); err != nil {
		return nil, err
	}
	return deployment.FromState(state), nil
}

// GetByStack returns the newest non-removed deployment of a stack.
func (r *DeploymentRepository) GetByStack(ctx context.Context, environmentID domain.EnvironmentID, stackName string) (*deployment.Deployment, error) {
	all, err := r.list(ctx, func(s deployment.State) bool {
		return s.EnvironmentID == environmentID && s.StackName == stackName && s.Status != deployment.StatusRemoved
	})
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%s for stack %q in %q: %w", deploymentEntity, stackName, environmentID, domain.ErrNotFound)
	}
	return all[len(all)-1], nil
}

func (r *DeploymentRepository) ListByEnvironment(ctx context.Context, environmentID domain.EnvironmentID) ([]*deployment.Deployment, error) {
	return r.list(ctx, func(s deployment.State) bool {
		return s.EnvironmentID == environmentID
	})
}

func (r *DeploymentRepository) ListActive(ctx context.Context) ([]*deployment.Deployment, error) {
	return r.list(ctx, func(s deployment.State) bool {
		return s.Status.IsActive()
	})
}

func (r *DeploymentRepository) SaveChanges(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.unit.commit(r.store.db, bucketDeployments, deploymentEntity, func(d *deployment.Deployment, version int64) ([]byte, error) {
		state := d.State()
		state.Version = version
		return json.Marshal(state)
	})
}

// list returns matching deployments ordered by creation time.
func (r *DeploymentRepository) list(ctx context.Context, match func(deployment.State) bool) ([]*deployment.Deployment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var states []deployment.State
	err := r.store.each(bucketDeployments, func(data []byte) error {
		var state deployment.State
		if err := json.Unmarshal(data, &state); err != nil {
			return err
		}
		if match(state) {
			states = append(states, state)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})
	out := make([]*deployment.Deployment, 0, len(states))
	for _, s := range states {
		out = append(out, deployment.FromState(s))
	}
	return out, nil
}
