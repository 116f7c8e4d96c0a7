package health

// Disk free-space thresholds in percent.
const (
	DiskUnhealthyFreePercent = 5.0
	DiskDegradedFreePercent  = 15.0
)

// DatabaseHealth is the health of a database dependency.
type DatabaseHealth struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DiskHealth is the health of a mounted volume.
type DiskHealth struct {
	Mount       string  `json:"mount"`
	Status      Status  `json:"status"`
	FreePercent float64 `json:"free_percent"`
}

// NewDiskHealth derives a disk status from the free-space percentage.
func NewDiskHealth(mount string, freePercent float64) DiskHealth {
	status := StatusHealthy
	switch {
	case freePercent < 0:
		status = StatusUnknown
	case freePercent < DiskUnhealthyFreePercent:
		status = StatusUnhealthy
	case freePercent < DiskDegradedFreePercent:
		status = StatusDegraded
	}
	return DiskHealth{Mount: mount, Status: status, FreePercent: freePercent}
}

// ExternalServiceHealth is the health of a remote dependency.
type ExternalServiceHealth struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

// InfraHealth groups infrastructure dependencies of a stack.
type InfraHealth struct {
	Databases        []DatabaseHealth        `json:"databases,omitempty"`
	Disks            []DiskHealth            `json:"disks,omitempty"`
	ExternalServices []ExternalServiceHealth `json:"external_services,omitempty"`
}

// Empty reports whether no infrastructure component was probed.
func (i InfraHealth) Empty() bool {
	return len(i.Databases) == 0 && len(i.Disks) == 0 && len(i.ExternalServices) == 0
}

// Status returns the worst component status, or Unknown when empty.
func (i InfraHealth) Status() Status {
	statuses := make([]Status, 0, len(i.Databases)+len(i.Disks)+len(i.ExternalServices))
	for _, db := range i.Databases {
		statuses = append(statuses, db.Status)
	}
	for _, disk := range i.Disks {
		statuses = append(statuses, disk.Status)
	}
	for _, svc := range i.ExternalServices {
		statuses = append(statuses, svc.Status)
	}
	return Aggregate(statuses...)
}
