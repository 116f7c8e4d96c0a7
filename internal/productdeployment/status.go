package productdeployment

// Status is the lifecycle state of a product deployment.
type Status string

const (
	StatusDeploying        Status = "Deploying"
	StatusUpgrading        Status = "Upgrading"
	StatusRunning          Status = "Running"
	StatusPartiallyRunning Status = "PartiallyRunning"
	StatusFailed           Status = "Failed"
	StatusRemoving         Status = "Removing"
	StatusRemoved          Status = "Removed"
)

// ValidTransitions is the adjacency table of the product state machine.
// Health reconciliation moves between Running, PartiallyRunning and Failed
// outside this table, see RecalculateProductStatus.
var ValidTransitions = map[Status][]Status{
	StatusDeploying:        {StatusRunning, StatusPartiallyRunning, StatusFailed},
	StatusUpgrading:        {StatusRunning, StatusPartiallyRunning, StatusFailed},
	StatusRunning:          {StatusUpgrading, StatusRemoving},
	StatusPartiallyRunning: {StatusUpgrading, StatusRemoving},
	StatusFailed:           {StatusUpgrading, StatusRemoving},
	StatusRemoving:         {StatusRemoved},
	StatusRemoved:          {},
}

// CanTransitionTo reports whether next is reachable from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range ValidTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsOperational reports whether health reconciliation may touch the aggregate.
func (s Status) IsOperational() bool {
	return s == StatusRunning || s == StatusPartiallyRunning
}

// IsInProgress reports whether a deploy, upgrade or removal is underway.
func (s Status) IsInProgress() bool {
	return s == StatusDeploying || s == StatusUpgrading || s == StatusRemoving
}

// StackStatus is the lifecycle state of one stack inside a product deployment.
type StackStatus string

const (
	StackPending   StackStatus = "Pending"
	StackDeploying StackStatus = "Deploying"
	StackRunning   StackStatus = "Running"
	StackFailed    StackStatus = "Failed"
	StackRemoving  StackStatus = "Removing"
	StackRemoved   StackStatus = "Removed"
)

// SyncResult distinguishes the outcomes of health reconciliation.
type SyncResult int

const (
	// SyncSkipped means the aggregate was not operational and nothing was inspected.
	SyncSkipped SyncResult = iota
	// SyncUnchanged means the live state already matched.
	SyncUnchanged
	// SyncChanged means the aggregate was updated.
	SyncChanged
)

func (r SyncResult) String() string {
	switch r {
	case SyncSkipped:
		return "skipped"
	case SyncUnchanged:
		return "unchanged"
	case SyncChanged:
		return "changed"
	default:
		return "unknown"
	}
}
