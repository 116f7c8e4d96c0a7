package health

import (
	"fmt"
	"strings"
)

// Status is the health of a component ordered by severity. Higher values are worse.
type Status int

const (
	StatusHealthy Status = iota
	StatusUnknown
	StatusDegraded
	StatusUnhealthy
)

var statusNames = [...]string{
	StatusHealthy:   "Healthy",
	StatusUnknown:   "Unknown",
	StatusDegraded:  "Degraded",
	StatusUnhealthy: "Unhealthy",
}

func (s Status) String() string {
	if s < StatusHealthy || s > StatusUnhealthy {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Severity returns the ordering value used for worst-wins aggregation.
func (s Status) Severity() int {
	return int(s)
}

// CombineWith returns the more severe of the two statuses.
func (s Status) CombineWith(other Status) Status {
	if other.Severity() > s.Severity() {
		return other
	}
	return s
}

// IsWorseThan reports whether s is strictly more severe than other.
func (s Status) IsWorseThan(other Status) bool {
	return s.Severity() > other.Severity()
}

// Aggregate returns the worst status in the input, or StatusUnknown when empty.
func Aggregate(statuses ...Status) Status {
	if len(statuses) == 0 {
		return StatusUnknown
	}
	worst := statuses[0]
	for _, status := range statuses[1:] {
		worst = worst.CombineWith(status)
	}
	return worst
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(value string) (Status, error) {
	for i, name := range statusNames {
		if strings.EqualFold(strings.TrimSpace(value), name) {
			return Status(i), nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown health status %q", value)
}

func (s Status) MarshalText() ([]byte, error) {
	if s < StatusHealthy || s > StatusUnhealthy {
		return nil, fmt.Errorf("invalid health status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
