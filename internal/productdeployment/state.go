package productdeployment

import (
	"time"

	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/domain"
)

// StackState is the persisted form of a StackDeployment.
type StackState struct {
	Name           string        `json:"name"`
	StackID        string        `json:"stack_id,omitempty"`
	Order          int           `json:"order"`
	Status         StackStatus   `json:"status"`
	DeploymentID   deployment.ID `json:"deployment_id,omitempty"`
	StartedAt      time.Time     `json:"started_at,omitempty"`
	CompletedAt    time.Time     `json:"completed_at,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	ServiceCount   int           `json:"service_count"`
	IsNewInUpgrade bool          `json:"is_new_in_upgrade,omitempty"`
}

// State is the persisted form of a ProductDeployment.
type State struct {
	ID              ID                   `json:"id"`
	EnvironmentID   domain.EnvironmentID `json:"environment_id"`
	ProductGroupID  string               `json:"product_group_id"`
	ProductID       string               `json:"product_id,omitempty"`
	ProductName     string               `json:"product_name"`
	ProductVersion  string               `json:"product_version"`
	DeployedBy      string               `json:"deployed_by,omitempty"`
	Status          Status               `json:"status"`
	Stacks          []StackState         `json:"stacks"`
	Variables       map[string]string    `json:"variables,omitempty"`
	Phases          []PhaseRecord        `json:"phases,omitempty"`
	IsUpgrade       bool                 `json:"is_upgrade,omitempty"`
	PreviousVersion string               `json:"previous_version,omitempty"`
	UpgradeCount    int                  `json:"upgrade_count"`
	LastUpgradedAt  time.Time            `json:"last_upgraded_at,omitempty"`
	ContinueOnError bool                 `json:"continue_on_error"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	CompletedAt     time.Time            `json:"completed_at,omitempty"`
	Version         int64                `json:"version"`
}

// State exports the aggregate for persistence.
func (p *ProductDeployment) State() State {
	stacks := make([]StackState, 0, len(p.stacks))
	for _, s := range p.stacks {
		stacks = append(stacks, StackState{
			Name:           s.name,
			StackID:        s.stackID,
			Order:          s.order,
			Status:         s.status,
			DeploymentID:   s.deploymentID,
			StartedAt:      s.startedAt,
			CompletedAt:    s.completedAt,
			ErrorMessage:   s.errorMessage,
			ServiceCount:   s.serviceCount,
			IsNewInUpgrade: s.isNewInUpgrade,
		})
	}
	return State{
		ID:              p.id,
		EnvironmentID:   p.environmentID,
		ProductGroupID:  p.productGroupID,
		ProductID:       p.productID,
		ProductName:     p.productName,
		ProductVersion:  p.productVersion,
		DeployedBy:      p.deployedBy,
		Status:          p.status,
		Stacks:          stacks,
		Variables:       p.Variables(),
		Phases:          p.PhaseHistory(),
		IsUpgrade:       p.isUpgrade,
		PreviousVersion: p.previousVersion,
		UpgradeCount:    p.upgradeCount,
		LastUpgradedAt:  p.lastUpgradedAt,
		ContinueOnError: p.continueOnError,
		ErrorMessage:    p.errorMessage,
		CreatedAt:       p.createdAt,
		CompletedAt:     p.completedAt,
		Version:         p.version,
	}
}

// FromState rebuilds an aggregate loaded from storage.
func FromState(s State) *ProductDeployment {
	stacks := make([]*StackDeployment, 0, len(s.Stacks))
	for _, st := range s.Stacks {
		stacks = append(stacks, &StackDeployment{
			name:           st.Name,
			stackID:        st.StackID,
			order:          st.Order,
			status:         st.Status,
			deploymentID:   st.DeploymentID,
			startedAt:      st.StartedAt,
			completedAt:    st.CompletedAt,
			errorMessage:   st.ErrorMessage,
			serviceCount:   st.ServiceCount,
			isNewInUpgrade: st.IsNewInUpgrade,
		})
	}
	return &ProductDeployment{
		id:              s.ID,
		environmentID:   s.EnvironmentID,
		productGroupID:  s.ProductGroupID,
		productID:       s.ProductID,
		productName:     s.ProductName,
		productVersion:  s.ProductVersion,
		deployedBy:      s.DeployedBy,
		status:          s.Status,
		stacks:          stacks,
		variables:       copyVars(s.Variables),
		phases:          append([]PhaseRecord(nil), s.Phases...),
		isUpgrade:       s.IsUpgrade,
		previousVersion: s.PreviousVersion,
		upgradeCount:    s.UpgradeCount,
		lastUpgradedAt:  s.LastUpgradedAt,
		continueOnError: s.ContinueOnError,
		errorMessage:    s.ErrorMessage,
		createdAt:       s.CreatedAt,
		completedAt:     s.CompletedAt,
		version:         s.Version,
	}
}
