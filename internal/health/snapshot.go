package health

import (
	"time"

	"github.com/readystackgo/rsgo/internal/domain"
)

// SnapshotID identifies a health snapshot.
type SnapshotID string

// Snapshot is an immutable point-in-time health capture for one deployment.
// Each probe cycle produces a new snapshot.
type Snapshot struct {
	id             SnapshotID
	organizationID domain.OrganizationID
	environmentID  domain.EnvironmentID
	deploymentID   string
	stackName      string
	capturedAt     time.Time
	mode           OperationMode
	currentVersion string
	targetVersion  string
	bus            *BusHealth
	infra          *InfraHealth
	self           SelfHealth
}

// CaptureParams carries the inputs of Capture.
type CaptureParams struct {
	ID             SnapshotID
	OrganizationID domain.OrganizationID
	EnvironmentID  domain.EnvironmentID
	DeploymentID   string
	StackName      string
	CapturedAt     time.Time
	Mode           OperationMode
	CurrentVersion string
	TargetVersion  string
	Bus            *BusHealth
	Infra          *InfraHealth
	Self           SelfHealth
}

// Capture validates the inputs and creates a snapshot.
func Capture(p CaptureParams) (*Snapshot, error) {
	if err := domain.RequireNonEmpty("snapshot id", string(p.ID)); err != nil {
		return nil, err
	}
	if err := domain.RequireNonEmpty("environment id", string(p.EnvironmentID)); err != nil {
		return nil, err
	}
	if err := domain.RequireNonEmpty("deployment id", p.DeploymentID); err != nil {
		return nil, err
	}
	if err := domain.RequireNonEmpty("stack name", p.StackName); err != nil {
		return nil, err
	}
	mode := p.Mode
	if mode == "" {
		mode = ModeNormal
	}
	if !mode.Valid() {
		return nil, domain.InvalidArgument("unknown operation mode %q", mode)
	}
	capturedAt := p.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	s := &Snapshot{
		id:             p.ID,
		organizationID: p.OrganizationID,
		environmentID:  p.EnvironmentID,
		deploymentID:   p.DeploymentID,
		stackName:      p.StackName,
		capturedAt:     capturedAt.UTC(),
		mode:           mode,
		currentVersion: p.CurrentVersion,
		targetVersion:  p.TargetVersion,
		self:           NewSelfHealth(p.Self.Services),
	}
	if p.Bus != nil {
		bus := *p.Bus
		bus.Endpoints = append([]BusEndpointHealth(nil), p.Bus.Endpoints...)
		if bus.CheckedAt.IsZero() {
			bus.CheckedAt = s.capturedAt
		}
		s.bus = &bus
	}
	if p.Infra != nil {
		infra := InfraHealth{
			Databases:        append([]DatabaseHealth(nil), p.Infra.Databases...),
			Disks:            append([]DiskHealth(nil), p.Infra.Disks...),
			ExternalServices: append([]ExternalServiceHealth(nil), p.Infra.ExternalServices...),
		}
		s.infra = &infra
	}
	return s, nil
}

func (s *Snapshot) ID() SnapshotID                        { return s.id }
func (s *Snapshot) OrganizationID() domain.OrganizationID { return s.organizationID }
func (s *Snapshot) EnvironmentID() domain.EnvironmentID   { return s.environmentID }
func (s *Snapshot) DeploymentID() string                  { return s.deploymentID }
func (s *Snapshot) StackName() string                     { return s.stackName }
func (s *Snapshot) CapturedAt() time.Time                 { return s.capturedAt }
func (s *Snapshot) Mode() OperationMode                   { return s.mode }
func (s *Snapshot) CurrentVersion() string                { return s.currentVersion }
func (s *Snapshot) TargetVersion() string                 { return s.targetVersion }
func (s *Snapshot) Self() SelfHealth                      { return NewSelfHealth(s.self.Services) }

// Bus returns the bus health, if the stack uses bus integration.
func (s *Snapshot) Bus() (BusHealth, bool) {
	if s.bus == nil {
		return BusHealth{}, false
	}
	return *s.bus, true
}

// Infra returns the infrastructure health, if any was probed.
func (s *Snapshot) Infra() (InfraHealth, bool) {
	if s.infra == nil {
		return InfraHealth{}, false
	}
	return *s.infra, true
}

// Overall is the overall status, recomputed from the inputs on every call.
func (s *Snapshot) Overall() Status {
	return s.CalculateOverallStatus()
}

// CalculateOverallStatus folds the mode floor with every available component
// status. The result is never better than the mode's minimum status.
func (s *Snapshot) CalculateOverallStatus() Status {
	overall := s.mode.MinimumHealthStatus().CombineWith(s.self.Status())
	if s.bus != nil {
		overall = overall.CombineWith(s.bus.Status())
	}
	if s.infra != nil && !s.infra.Empty() {
		overall = overall.CombineWith(s.infra.Status())
	}
	return overall
}

// Params returns the inputs needed to recreate the snapshot, used by repositories.
func (s *Snapshot) Params() CaptureParams {
	p := CaptureParams{
		ID:             s.id,
		OrganizationID: s.organizationID,
		EnvironmentID:  s.environmentID,
		DeploymentID:   s.deploymentID,
		StackName:      s.stackName,
		CapturedAt:     s.capturedAt,
		Mode:           s.mode,
		CurrentVersion: s.currentVersion,
		TargetVersion:  s.targetVersion,
		Self:           s.Self(),
	}
	if bus, ok := s.Bus(); ok {
		p.Bus = &bus
	}
	if infra, ok := s.Infra(); ok {
		p.Infra = &infra
	}
	return p
}
