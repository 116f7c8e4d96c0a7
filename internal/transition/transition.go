package transition

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/health"
)

// ServiceChange captures a service status change between snapshots.
type ServiceChange struct {
	Name           string
	PreviousStatus health.Status
	CurrentStatus  health.Status
	Reason         string
	RestartDelta   int
}

// StackTransition captures an overall status change of one deployment.
type StackTransition struct {
	DeploymentID    string
	StackName       string
	EnvironmentID   domain.EnvironmentID
	PreviousOverall health.Status
	CurrentOverall  health.Status
	PreviousMode    health.OperationMode
	CurrentMode     health.OperationMode
	Services        []ServiceChange
}

// Detect compares the previous snapshot of a deployment with the current one.
// Without a previous snapshot only non-healthy stacks are reported. It returns
// false when nothing worth notifying changed.
func Detect(prev, current *health.Snapshot) (StackTransition, bool) {
	if current == nil {
		return StackTransition{}, false
	}
	st := StackTransition{
		DeploymentID:    current.DeploymentID(),
		StackName:       current.StackName(),
		EnvironmentID:   current.EnvironmentID(),
		PreviousOverall: health.StatusUnknown,
		CurrentOverall:  current.Overall(),
		CurrentMode:     current.Mode(),
	}

	prevServices := map[string]health.ServiceHealth{}
	firstRun := prev == nil
	if !firstRun {
		st.PreviousOverall = prev.Overall()
		st.PreviousMode = prev.Mode()
		for _, service := range prev.Self().Services {
			prevServices[service.Name] = service
		}
	}

	for _, service := range current.Self().Services {
		prevService, hadPrev := prevServices[service.Name]
		if firstRun || !hadPrev {
			if service.Status == health.StatusHealthy {
				continue
			}
			st.Services = append(st.Services, ServiceChange{
				Name:           service.Name,
				PreviousStatus: health.StatusUnknown,
				CurrentStatus:  service.Status,
				Reason:         service.Reason,
			})
			continue
		}
		if prevService.Status == service.Status {
			continue
		}
		st.Services = append(st.Services, ServiceChange{
			Name:           service.Name,
			PreviousStatus: prevService.Status,
			CurrentStatus:  service.Status,
			Reason:         service.Reason,
			RestartDelta:   service.RestartCount - prevService.RestartCount,
		})
	}

	// Sort by service name for deterministic output
	sort.Slice(st.Services, func(i, j int) bool {
		return st.Services[i].Name < st.Services[j].Name
	})

	if firstRun {
		return st, st.CurrentOverall != health.StatusHealthy || len(st.Services) > 0
	}
	changed := st.PreviousOverall != st.CurrentOverall || st.PreviousMode != st.CurrentMode
	return st, changed || len(st.Services) > 0
}

// Event converts the transition into a health status event.
func (t StackTransition) Event() domain.Event {
	message := fmt.Sprintf("%s: %s -> %s", t.StackName, t.PreviousOverall, t.CurrentOverall)
	e := domain.NewEvent(domain.EventHealthStatusChanged, t.DeploymentID, t.StackName, message).
		With("environment_id", string(t.EnvironmentID)).
		With("previous_status", t.PreviousOverall.String()).
		With("current_status", t.CurrentOverall.String()).
		With("mode", string(t.CurrentMode))
	if t.PreviousMode != "" && t.PreviousMode != t.CurrentMode {
		e = e.With("previous_mode", string(t.PreviousMode))
	}
	for _, change := range t.Services {
		value := fmt.Sprintf("%s -> %s", change.PreviousStatus, change.CurrentStatus)
		if change.Reason != "" {
			value += " (" + change.Reason + ")"
		}
		if change.RestartDelta > 0 {
			value += ", restarts +" + strconv.Itoa(change.RestartDelta)
		}
		e = e.With("service."+change.Name, value)
	}
	return e
}
