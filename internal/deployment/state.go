package deployment

import (
	"time"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/health"
)

// State is the persisted form of a Deployment.
type State struct {
	ID                 ID                   `json:"id"`
	EnvironmentID      domain.EnvironmentID `json:"environment_id"`
	StackID            string               `json:"stack_id,omitempty"`
	StackName          string               `json:"stack_name"`
	StackVersion       string               `json:"stack_version,omitempty"`
	ProjectName        string               `json:"project_name"`
	Status             Status               `json:"status"`
	OperationMode      health.OperationMode `json:"operation_mode"`
	Services           []DeployedService    `json:"services,omitempty"`
	Variables          map[string]string    `json:"variables,omitempty"`
	Phases             []PhaseRecord        `json:"phases,omitempty"`
	CurrentPhase       Phase                `json:"current_phase"`
	Progress           int                  `json:"progress"`
	ProgressMessage    string               `json:"progress_message,omitempty"`
	ErrorMessage       string               `json:"error_message,omitempty"`
	CancelRequested    bool                 `json:"cancel_requested,omitempty"`
	CancellationReason string               `json:"cancellation_reason,omitempty"`
	PreviousVersion    string               `json:"previous_version,omitempty"`
	TargetVersion      string               `json:"target_version,omitempty"`
	UpgradeCount       int                  `json:"upgrade_count"`
	LastUpgradedAt     time.Time            `json:"last_upgraded_at,omitempty"`
	DeployedBy         string               `json:"deployed_by,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	CompletedAt        time.Time            `json:"completed_at,omitempty"`
	Version            int64                `json:"version"`
}

// State exports the aggregate for persistence. Pending events are not included.
func (d *Deployment) State() State {
	return State{
		ID:                 d.id,
		EnvironmentID:      d.environmentID,
		StackID:            d.stackID,
		StackName:          d.stackName,
		StackVersion:       d.stackVersion,
		ProjectName:        d.projectName,
		Status:             d.status,
		OperationMode:      d.mode,
		Services:           d.Services(),
		Variables:          d.Variables(),
		Phases:             d.PhaseHistory(),
		CurrentPhase:       d.currentPhase,
		Progress:           d.progress,
		ProgressMessage:    d.progressMessage,
		ErrorMessage:       d.errorMessage,
		CancelRequested:    d.cancelRequested,
		CancellationReason: d.cancelReason,
		PreviousVersion:    d.previousVersion,
		TargetVersion:      d.targetVersion,
		UpgradeCount:       d.upgradeCount,
		LastUpgradedAt:     d.lastUpgradedAt,
		DeployedBy:         d.deployedBy,
		CreatedAt:          d.createdAt,
		CompletedAt:        d.completedAt,
		Version:            d.version,
	}
}

// FromState rebuilds an aggregate loaded from storage.
func FromState(s State) *Deployment {
	mode := s.OperationMode
	if mode == "" {
		mode = health.ModeNormal
	}
	return &Deployment{
		id:              s.ID,
		environmentID:   s.EnvironmentID,
		stackID:         s.StackID,
		stackName:       s.StackName,
		stackVersion:    s.StackVersion,
		projectName:     s.ProjectName,
		status:          s.Status,
		mode:            mode,
		services:        append([]DeployedService(nil), s.Services...),
		variables:       copyVars(s.Variables),
		phases:          append([]PhaseRecord(nil), s.Phases...),
		currentPhase:    s.CurrentPhase,
		progress:        s.Progress,
		progressMessage: s.ProgressMessage,
		errorMessage:    s.ErrorMessage,
		cancelRequested: s.CancelRequested,
		cancelReason:    s.CancellationReason,
		previousVersion: s.PreviousVersion,
		targetVersion:   s.TargetVersion,
		upgradeCount:    s.UpgradeCount,
		lastUpgradedAt:  s.LastUpgradedAt,
		deployedBy:      s.DeployedBy,
		createdAt:       s.CreatedAt,
		completedAt:     s.CompletedAt,
		version:         s.Version,
	}
}
