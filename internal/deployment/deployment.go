package deployment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/health"
)

const entityName = "deployment"

// DefaultCancellationReason is recorded when RequestCancellation gets no reason.
const DefaultCancellationReason = "Cancellation requested by user"

// ID identifies a deployment.
type ID string

// NewID returns a random deployment id.
func NewID() ID {
	return ID(uuid.NewString())
}

// DeployedService describes one container created for the deployment.
type DeployedService struct {
	Name          string `json:"name"`
	ContainerID   string `json:"container_id,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	Image         string `json:"image,omitempty"`
	Status        string `json:"status,omitempty"`
}

// PhaseRecord is one entry of the phase history.
type PhaseRecord struct {
	Phase      Phase     `json:"phase"`
	Percentage int       `json:"percentage"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

// Deployment is one stack instance in one environment. It is mutated only
// through its methods; every mutation records pending events.
type Deployment struct {
	domain.EventLog

	id              ID
	environmentID   domain.EnvironmentID
	stackID         string
	stackName       string
	stackVersion    string
	projectName     string
	status          Status
	mode            health.OperationMode
	services        []DeployedService
	variables       map[string]string
	phases          []PhaseRecord
	currentPhase    Phase
	progress        int
	progressMessage string
	errorMessage    string
	cancelRequested bool
	cancelReason    string
	previousVersion string
	targetVersion   string
	upgradeCount    int
	lastUpgradedAt  time.Time
	deployedBy      string
	createdAt       time.Time
	completedAt     time.Time
	version         int64
}

// StartOption customises a new deployment.
type StartOption func(*Deployment)

// WithStackID records the catalog stack id.
func WithStackID(stackID string) StartOption {
	return func(d *Deployment) {
		d.stackID = stackID
	}
}

// WithStackVersion records the stack version being installed.
func WithStackVersion(version string) StartOption {
	return func(d *Deployment) {
		d.stackVersion = version
	}
}

// WithVariables records the variables the deployment was requested with.
func WithVariables(vars map[string]string) StartOption {
	return func(d *Deployment) {
		d.variables = copyVars(vars)
	}
}

// Start creates a pending deployment.
func Start(id ID, environmentID domain.EnvironmentID, stackName, projectName, deployedBy string, opts ...StartOption) (*Deployment, error) {
	if err := domain.RequireNonEmpty("deployment id", string(id)); err != nil {
		return nil, err
	}
	if err := domain.RequireNonEmpty("environment id", string(environmentID)); err != nil {
		return nil, err
	}
	if err := domain.RequireNonEmpty("stack name", stackName); err != nil {
		return nil, err
	}
	if err := domain.RequireNonEmpty("project name", projectName); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	d := &Deployment{
		id:            id,
		environmentID: environmentID,
		stackName:     stackName,
		projectName:   projectName,
		deployedBy:    deployedBy,
		status:        StatusPending,
		mode:          health.ModeNormal,
		variables:     map[string]string{},
		createdAt:     now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.recordPhase(PhaseInitializing, 0, "Deployment initialized")
	d.Record(d.event(domain.EventDeploymentStarted, fmt.Sprintf("deployment of %s started", stackName)))
	return d, nil
}

func (d *Deployment) ID() ID                              { return d.id }
func (d *Deployment) EnvironmentID() domain.EnvironmentID { return d.environmentID }
func (d *Deployment) StackID() string                     { return d.stackID }
func (d *Deployment) StackName() string                   { return d.stackName }
func (d *Deployment) StackVersion() string                { return d.stackVersion }
func (d *Deployment) ProjectName() string                 { return d.projectName }
func (d *Deployment) Status() Status                      { return d.status }
func (d *Deployment) OperationMode() health.OperationMode { return d.mode }
func (d *Deployment) CurrentPhase() Phase                 { return d.currentPhase }
func (d *Deployment) Progress() int                       { return d.progress }
func (d *Deployment) ProgressMessage() string             { return d.progressMessage }
func (d *Deployment) ErrorMessage() string                { return d.errorMessage }
func (d *Deployment) IsCancellationRequested() bool       { return d.cancelRequested }
func (d *Deployment) CancellationReason() string          { return d.cancelReason }
func (d *Deployment) PreviousVersion() string             { return d.previousVersion }
func (d *Deployment) TargetVersion() string               { return d.targetVersion }
func (d *Deployment) UpgradeCount() int                   { return d.upgradeCount }
func (d *Deployment) LastUpgradedAt() time.Time           { return d.lastUpgradedAt }
func (d *Deployment) DeployedBy() string                  { return d.deployedBy }
func (d *Deployment) CreatedAt() time.Time                { return d.createdAt }
func (d *Deployment) CompletedAt() time.Time              { return d.completedAt }

// Version is the optimistic concurrency token of the last load or save.
func (d *Deployment) Version() int64 { return d.version }

// SetVersion is called by repositories after a successful save.
func (d *Deployment) SetVersion(version int64) { d.version = version }

// Services returns a copy of the deployed services.
func (d *Deployment) Services() []DeployedService {
	return append([]DeployedService(nil), d.services...)
}

// Variables returns a copy of the deployment variables.
func (d *Deployment) Variables() map[string]string {
	return copyVars(d.variables)
}

// PhaseHistory returns a copy of the recorded phases, oldest first.
func (d *Deployment) PhaseHistory() []PhaseRecord {
	return append([]PhaseRecord(nil), d.phases...)
}

// Duration is the time from creation to completion, or zero while incomplete.
func (d *Deployment) Duration() time.Duration {
	if d.completedAt.IsZero() {
		return 0
	}
	return d.completedAt.Sub(d.createdAt)
}

// GetValidNextStates returns every status reachable from the current one.
func (d *Deployment) GetValidNextStates() []Status {
	return d.status.ValidNextStates()
}

// CanTransitionTo reports whether next is reachable from the current status.
func (d *Deployment) CanTransitionTo(next Status) bool {
	return d.status.CanTransitionTo(next)
}

// MarkAsInstalling moves a pending deployment into installation.
func (d *Deployment) MarkAsInstalling() error {
	if d.status != StatusPending {
		return domain.NewTransitionError(entityName, d.status, StatusInstalling)
	}
	d.status = StatusInstalling
	d.recordPhase(PhaseInstalling, d.progress, "Installing stack")
	d.Record(d.event(domain.EventDeploymentInstalling, "installation started"))
	return nil
}

// StartUpgrade moves the deployment into an upgrade toward targetVersion.
func (d *Deployment) StartUpgrade(targetVersion string) error {
	if err := domain.RequireNonEmpty("target version", targetVersion); err != nil {
		return err
	}
	if err := d.transition(StatusUpgrading); err != nil {
		return err
	}
	d.previousVersion = d.stackVersion
	d.targetVersion = targetVersion
	d.mode = health.ModeMigrating
	d.errorMessage = ""
	d.clearCancellation()
	d.completedAt = time.Time{}
	d.progress = 0
	d.recordPhase(PhaseUpgrading, 0, fmt.Sprintf("Upgrading from %s to %s", displayVersion(d.previousVersion), targetVersion))
	d.Record(d.event(domain.EventDeploymentUpgradeStarted, "upgrade started").
		With("from", d.previousVersion).
		With("to", targetVersion))
	return nil
}

// UpdateProgress records progress in any non-terminal state. It does not change Status.
func (d *Deployment) UpdateProgress(phase Phase, percentage int, message string) error {
	if percentage < 0 || percentage > 100 {
		return domain.InvalidArgument("progress percentage must be between 0 and 100, got %d", percentage)
	}
	if phase == "" {
		return domain.InvalidArgument("phase is required")
	}
	if d.status.IsTerminal() {
		return fmt.Errorf("%s: cannot update progress while %s: %w", entityName, d.status, domain.ErrInvalidTransition)
	}
	d.recordPhase(phase, percentage, message)
	return nil
}

// MarkAsRunning records a successful install, upgrade or restart.
func (d *Deployment) MarkAsRunning(services []DeployedService) error {
	if d.status != StatusInstalling && d.status != StatusUpgrading && d.status != StatusStopped {
		return domain.NewTransitionError(entityName, d.status, StatusRunning)
	}
	wasUpgrading := d.status == StatusUpgrading
	d.status = StatusRunning
	d.services = append([]DeployedService(nil), services...)
	d.errorMessage = ""
	d.clearCancellation()
	d.mode = health.ModeNormal
	now := time.Now().UTC()
	d.completedAt = now
	if wasUpgrading {
		d.stackVersion = d.targetVersion
		d.targetVersion = ""
		d.upgradeCount++
		d.lastUpgradedAt = now
	}
	d.recordPhase(PhaseCompleted, 100, "Deployment completed")
	d.Record(d.event(domain.EventDeploymentCompleted, fmt.Sprintf("%d services running", len(services))))
	return nil
}

// MarkAsFailed records a failure from any state that permits it.
func (d *Deployment) MarkAsFailed(message string) error {
	if err := d.transition(StatusFailed); err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		message = "Deployment failed"
	}
	d.errorMessage = message
	d.mode = health.ModeFailed
	d.completedAt = time.Now().UTC()
	d.recordPhase(PhaseFailed, d.progress, message)
	d.Record(d.event(domain.EventDeploymentFailed, message))
	return nil
}

// MarkAsStopped records that a running deployment was stopped.
func (d *Deployment) MarkAsStopped() error {
	if d.status != StatusRunning {
		return domain.NewTransitionError(entityName, d.status, StatusStopped)
	}
	d.status = StatusStopped
	d.mode = health.ModeStopped
	d.recordPhase(PhaseStopped, d.progress, "Deployment stopped")
	d.Record(d.event(domain.EventDeploymentStopped, "deployment stopped"))
	return nil
}

// Restart moves a stopped or failed deployment back into installation.
func (d *Deployment) Restart() error {
	if d.status != StatusStopped && d.status != StatusFailed {
		return domain.NewTransitionError(entityName, d.status, StatusInstalling)
	}
	d.status = StatusInstalling
	d.mode = health.ModeNormal
	d.errorMessage = ""
	d.clearCancellation()
	d.completedAt = time.Time{}
	d.recordPhase(PhaseInstalling, 0, "Restarting deployment")
	d.Record(d.event(domain.EventDeploymentRestarted, "deployment restarted"))
	return nil
}

// RequestCancellation flags the running install or upgrade for cooperative
// cancellation. Status is unchanged; executors poll the flag between steps.
func (d *Deployment) RequestCancellation(reason string) error {
	if !d.status.IsInProgress() {
		return fmt.Errorf("%s: cannot cancel while %s: %w", entityName, d.status, domain.ErrInvalidTransition)
	}
	if d.cancelRequested {
		return nil
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultCancellationReason
	}
	d.cancelRequested = true
	d.cancelReason = reason
	d.Record(d.event(domain.EventDeploymentCancellationRequested, reason))
	return nil
}

// MarkAsRemoved terminates the deployment.
func (d *Deployment) MarkAsRemoved() error {
	if err := d.transition(StatusRemoved); err != nil {
		return err
	}
	d.services = nil
	d.completedAt = time.Now().UTC()
	d.recordPhase(PhaseRemoved, d.progress, "Deployment removed")
	d.Record(d.event(domain.EventDeploymentRemoved, "deployment removed"))
	return nil
}

// ChangeOperationMode applies an operator requested mode change.
func (d *Deployment) ChangeOperationMode(mode health.OperationMode) error {
	if !mode.Valid() {
		return domain.InvalidArgument("unknown operation mode %q", mode)
	}
	if d.status == StatusRemoved {
		return fmt.Errorf("%s: cannot change mode of a removed deployment: %w", entityName, domain.ErrInvalidTransition)
	}
	if !d.mode.CanTransitionTo(mode) {
		return domain.NewTransitionError(entityName+" operation mode", d.mode, mode)
	}
	previous := d.mode
	d.mode = mode
	d.Record(d.event(domain.EventOperationModeChanged, fmt.Sprintf("operation mode %s -> %s", previous, mode)).
		With("from", string(previous)).
		With("to", string(mode)))
	return nil
}

func (d *Deployment) transition(next Status) error {
	if !d.status.CanTransitionTo(next) {
		return domain.NewTransitionError(entityName, d.status, next)
	}
	d.status = next
	return nil
}

func (d *Deployment) clearCancellation() {
	d.cancelRequested = false
	d.cancelReason = ""
}

func (d *Deployment) recordPhase(phase Phase, percentage int, message string) {
	d.currentPhase = phase
	d.progress = percentage
	d.progressMessage = message
	d.phases = append(d.phases, PhaseRecord{
		Phase:      phase,
		Percentage: percentage,
		Message:    message,
		At:         time.Now().UTC(),
	})
}

func (d *Deployment) event(eventType domain.EventType, message string) domain.Event {
	return domain.NewEvent(eventType, string(d.id), d.stackName, message).
		With("environment_id", string(d.environmentID))
}

func displayVersion(version string) string {
	if version == "" {
		return "unknown"
	}
	return version
}

func copyVars(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}
