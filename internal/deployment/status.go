package deployment

// Status is the lifecycle state of a single-stack deployment.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInstalling Status = "Installing"
	StatusUpgrading  Status = "Upgrading"
	StatusRunning    Status = "Running"
	StatusStopped    Status = "Stopped"
	StatusFailed     Status = "Failed"
	StatusRemoved    Status = "Removed"
)

var validTransitions = map[Status][]Status{
	StatusPending:    {StatusInstalling, StatusUpgrading, StatusFailed, StatusRemoved},
	StatusInstalling: {StatusRunning, StatusFailed, StatusRemoved},
	StatusUpgrading:  {StatusRunning, StatusFailed, StatusRemoved},
	StatusRunning:    {StatusUpgrading, StatusStopped, StatusFailed, StatusRemoved},
	StatusStopped:    {StatusRunning, StatusInstalling, StatusUpgrading, StatusFailed, StatusRemoved},
	StatusFailed:     {StatusInstalling, StatusUpgrading, StatusRemoved},
	StatusRemoved:    {},
}

// ValidNextStates returns every status reachable from s.
func (s Status) ValidNextStates() []Status {
	return append([]Status(nil), validTransitions[s]...)
}

// CanTransitionTo reports whether next is reachable from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range validTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusRemoved
}

// IsInProgress reports whether an install or upgrade is underway.
func (s Status) IsInProgress() bool {
	switch s {
	case StatusPending, StatusInstalling, StatusUpgrading:
		return true
	default:
		return false
	}
}

// IsActive reports whether the deployment still owns containers worth probing.
func (s Status) IsActive() bool {
	switch s {
	case StatusInstalling, StatusUpgrading, StatusRunning, StatusStopped, StatusFailed:
		return true
	default:
		return false
	}
}

// Phase is a step of the install or upgrade pipeline.
type Phase string

const (
	PhaseInitializing     Phase = "Initializing"
	PhasePullingImages    Phase = "PullingImages"
	PhaseCreatingNetworks Phase = "CreatingNetworks"
	PhaseInstalling       Phase = "Installing"
	PhaseUpgrading        Phase = "Upgrading"
	PhaseStartingServices Phase = "StartingServices"
	PhaseHealthCheck      Phase = "HealthCheck"
	PhaseCompleted        Phase = "Completed"
	PhaseFailed           Phase = "Failed"
	PhaseStopped          Phase = "Stopped"
	PhaseRemoved          Phase = "Removed"
)
