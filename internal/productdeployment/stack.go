package productdeployment

import (
	"time"

	"github.com/readystackgo/rsgo/internal/deployment"
)

// StackDeployment is a child entity tracking one stack of a product deployment.
type StackDeployment struct {
	name           string
	stackID        string
	order          int
	status         StackStatus
	deploymentID   deployment.ID
	startedAt      time.Time
	completedAt    time.Time
	errorMessage   string
	serviceCount   int
	isNewInUpgrade bool
}

func (s *StackDeployment) Name() string                { return s.name }
func (s *StackDeployment) StackID() string             { return s.stackID }
func (s *StackDeployment) Order() int                  { return s.order }
func (s *StackDeployment) Status() StackStatus         { return s.status }
func (s *StackDeployment) DeploymentID() deployment.ID { return s.deploymentID }
func (s *StackDeployment) StartedAt() time.Time        { return s.startedAt }
func (s *StackDeployment) CompletedAt() time.Time      { return s.completedAt }
func (s *StackDeployment) ErrorMessage() string        { return s.errorMessage }
func (s *StackDeployment) ServiceCount() int           { return s.serviceCount }
func (s *StackDeployment) IsNewInUpgrade() bool        { return s.isNewInUpgrade }

// HasStarted reports whether a Deployment was created for the stack.
func (s *StackDeployment) HasStarted() bool {
	return s.deploymentID != ""
}

// ResetToPending prepares a failed or pending stack for another pass.
func (s *StackDeployment) ResetToPending() bool {
	if s.status != StackFailed && s.status != StackPending && s.status != StackRemoving {
		return false
	}
	s.status = StackPending
	s.errorMessage = ""
	s.completedAt = time.Time{}
	return true
}

func (s *StackDeployment) clone() *StackDeployment {
	c := *s
	return &c
}
