package health

import (
	"context"
	"time"

	"github.com/readystackgo/rsgo/internal/domain"
)

// SnapshotRepository persists health snapshots. Added snapshots are staged
// until SaveChanges.
type SnapshotRepository interface {
	NextIdentity() SnapshotID
	Add(snapshot *Snapshot)
	Get(ctx context.Context, id SnapshotID) (*Snapshot, error)
	GetLatestForDeployment(ctx context.Context, deploymentID string) (*Snapshot, error)
	GetHistory(ctx context.Context, deploymentID string, limit int) ([]*Snapshot, error)
	GetLatestForEnvironment(ctx context.Context, environmentID domain.EnvironmentID) ([]*Snapshot, error)
	RemoveOlderThan(ctx context.Context, age time.Duration) (int, error)
	SaveChanges(ctx context.Context) error
}
