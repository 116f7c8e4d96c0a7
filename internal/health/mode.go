package health

import (
	"fmt"
	"strings"
)

// OperationMode is an operator or system declared intent that is independent of
// raw container health.
type OperationMode string

const (
	ModeNormal      OperationMode = "Normal"
	ModeMigrating   OperationMode = "Migrating"
	ModeMaintenance OperationMode = "Maintenance"
	ModeStopped     OperationMode = "Stopped"
	ModeFailed      OperationMode = "Failed"
)

type modeRules struct {
	floor   Status
	allowed []OperationMode
}

var modeTable = map[OperationMode]modeRules{
	ModeNormal: {
		floor:   StatusHealthy,
		allowed: []OperationMode{ModeMigrating, ModeMaintenance, ModeStopped, ModeFailed},
	},
	ModeMigrating: {
		floor:   StatusDegraded,
		allowed: []OperationMode{ModeNormal, ModeFailed},
	},
	ModeMaintenance: {
		floor:   StatusDegraded,
		allowed: []OperationMode{ModeNormal, ModeStopped, ModeFailed},
	},
	ModeStopped: {
		floor:   StatusDegraded,
		allowed: []OperationMode{ModeNormal, ModeMaintenance, ModeFailed},
	},
	ModeFailed: {
		floor:   StatusUnhealthy,
		allowed: []OperationMode{ModeNormal, ModeMaintenance, ModeMigrating},
	},
}

// Modes lists every operation mode.
func Modes() []OperationMode {
	return []OperationMode{ModeNormal, ModeMigrating, ModeMaintenance, ModeStopped, ModeFailed}
}

// Valid reports whether m is a known mode.
func (m OperationMode) Valid() bool {
	_, ok := modeTable[m]
	return ok
}

// MinimumHealthStatus is the best overall status a snapshot may report in this mode.
func (m OperationMode) MinimumHealthStatus() Status {
	rules, ok := modeTable[m]
	if !ok {
		return StatusUnknown
	}
	return rules.floor
}

// AllowedTransitions returns the modes reachable from m.
func (m OperationMode) AllowedTransitions() []OperationMode {
	return append([]OperationMode(nil), modeTable[m].allowed...)
}

// CanTransitionTo reports whether next is reachable from m.
func (m OperationMode) CanTransitionTo(next OperationMode) bool {
	for _, candidate := range modeTable[m].allowed {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsPlannedRestriction reports whether the mode signals expected disruption.
func (m OperationMode) IsPlannedRestriction() bool {
	switch m {
	case ModeMigrating, ModeMaintenance, ModeStopped:
		return true
	default:
		return false
	}
}

// ParseOperationMode parses a mode name case-insensitively.
func ParseOperationMode(value string) (OperationMode, error) {
	for _, mode := range Modes() {
		if strings.EqualFold(strings.TrimSpace(value), string(mode)) {
			return mode, nil
		}
	}
	return "", fmt.Errorf("unknown operation mode %q", value)
}
