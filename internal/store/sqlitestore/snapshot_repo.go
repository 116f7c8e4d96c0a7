package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/health"
)

const defaultHistoryLimit = 50

const snapshotColumns = `id, organization_id, environment_id, deployment_id, stack_name, captured_at,
	operation_mode, current_version, target_version, self_health, bus_health, infra_health`

// SnapshotRepository implements [health.SnapshotRepository] backed by SQLite.
type SnapshotRepository struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	pending []*health.Snapshot
}

var _ health.SnapshotRepository = (*SnapshotRepository)(nil)

// NewSnapshotRepository returns a repository over db. now defaults to time.Now.
func NewSnapshotRepository(db *sql.DB, now func() time.Time) *SnapshotRepository {
	if now == nil {
		now = time.Now
	}
	return &SnapshotRepository{db: db, now: now}
}

func (r *SnapshotRepository) NextIdentity() health.SnapshotID {
	return health.SnapshotID(uuid.NewString())
}

func (r *SnapshotRepository) Add(snapshot *health.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, snapshot)
}

func (r *SnapshotRepository) SaveChanges(ctx context.Context) error {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, s := range pending {
		if err := insertSnapshot(ctx, tx, s); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}
	return nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, s *health.Snapshot) error {
	p := s.Params()
	self, err := json.Marshal(p.Self.Services)
	if err != nil {
		return fmt.Errorf("marshal self health: %w", err)
	}
	bus, err := marshalOptional(p.Bus)
	if err != nil {
		return fmt.Errorf("marshal bus health: %w", err)
	}
	infra, err := marshalOptional(p.Infra)
	if err != nil {
		return fmt.Errorf("marshal infra health: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO health_snapshots (`+snapshotColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID), string(p.OrganizationID), string(p.EnvironmentID), p.DeploymentID, p.StackName,
		p.CapturedAt.UnixNano(), string(p.Mode), p.CurrentVersion, p.TargetVersion,
		string(self), bus, infra,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("snapshot %q: %w", p.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) Get(ctx context.Context, id health.SnapshotID) (*health.Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM health_snapshots WHERE id = ?`,
		string(id),
	)
	return scanSnapshot(row)
}

func (r *SnapshotRepository) GetLatestForDeployment(ctx context.Context, deploymentID string) (*health.Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM health_snapshots
		 WHERE deployment_id = ? ORDER BY captured_at DESC LIMIT 1`,
		deploymentID,
	)
	return scanSnapshot(row)
}

// GetHistory returns the newest snapshots of a deployment, newest first.
func (r *SnapshotRepository) GetHistory(ctx context.Context, deploymentID string, limit int) ([]*health.Snapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return r.query(ctx,
		`SELECT `+snapshotColumns+` FROM health_snapshots
		 WHERE deployment_id = ? ORDER BY captured_at DESC LIMIT ?`,
		deploymentID, limit,
	)
}

// GetLatestForEnvironment returns the newest snapshot of every deployment in
// the environment, ordered by stack name.
func (r *SnapshotRepository) GetLatestForEnvironment(ctx context.Context, environmentID domain.EnvironmentID) ([]*health.Snapshot, error) {
	return r.query(ctx,
		`SELECT `+snapshotColumns+` FROM health_snapshots s
		 WHERE s.environment_id = ?
		   AND s.captured_at = (
		       SELECT MAX(captured_at) FROM health_snapshots WHERE deployment_id = s.deployment_id
		   )
		 ORDER BY s.stack_name, s.deployment_id`,
		string(environmentID),
	)
}

// RemoveOlderThan deletes snapshots captured more than age ago.
func (r *SnapshotRepository) RemoveOlderThan(ctx context.Context, age time.Duration) (int, error) {
	if age <= 0 {
		return 0, domain.InvalidArgument("retention age must be positive")
	}
	cutoff := r.now().Add(-age).UnixNano()
	res, err := r.db.ExecContext(ctx, `DELETE FROM health_snapshots WHERE captured_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return int(n), nil
}

func (r *SnapshotRepository) query(ctx context.Context, query string, args ...any) ([]*health.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*health.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*health.Snapshot, error) {
	var (
		id, org, env, deploymentID, stack string
		capturedAt                        int64
		mode, current, target, self       string
		bus, infra                        sql.NullString
	)
	err := row.Scan(&id, &org, &env, &deploymentID, &stack, &capturedAt, &mode, &current, &target, &self, &bus, &infra)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	p := health.CaptureParams{
		ID:             health.SnapshotID(id),
		OrganizationID: domain.OrganizationID(org),
		EnvironmentID:  domain.EnvironmentID(env),
		DeploymentID:   deploymentID,
		StackName:      stack,
		CapturedAt:     time.Unix(0, capturedAt).UTC(),
		Mode:           health.OperationMode(mode),
		CurrentVersion: current,
		TargetVersion:  target,
	}
	var services []health.ServiceHealth
	if err := json.Unmarshal([]byte(self), &services); err != nil {
		return nil, fmt.Errorf("unmarshal self health: %w", err)
	}
	p.Self = health.NewSelfHealth(services)
	if bus.Valid {
		var b health.BusHealth
		if err := json.Unmarshal([]byte(bus.String), &b); err != nil {
			return nil, fmt.Errorf("unmarshal bus health: %w", err)
		}
		p.Bus = &b
	}
	if infra.Valid {
		var i health.InfraHealth
		if err := json.Unmarshal([]byte(infra.String), &i); err != nil {
			return nil, fmt.Errorf("unmarshal infra health: %w", err)
		}
		p.Infra = &i
	}
	return health.Capture(p)
}

func marshalOptional[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
