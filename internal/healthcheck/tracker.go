// Package healthcheck reports the liveness and readiness of the rsgo process.
package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the latest health cycle of the monitor.
type Snapshot struct {
	LastCycleTime       *time.Time `json:"last_cycle_time"`
	LastSuccessTime     *time.Time `json:"last_success_time"`
	CycleDurationMS     int64      `json:"cycle_duration_ms"`
	DeploymentsChecked  int        `json:"deployments_checked"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	Docker              string     `json:"docker,omitempty"`
}

// Tracker records monitor cycles for the health endpoints.
type Tracker struct {
	mu                 sync.RWMutex
	now                func() time.Time
	lastCycle          time.Time
	lastSuccess        time.Time
	cycleDuration      time.Duration
	deploymentsChecked int
	failures           int
	lastErr            string
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// RecordCycle stores the outcome of one monitor cycle. A nil err marks the
// cycle successful and the process ready.
func (t *Tracker) RecordCycle(duration time.Duration, deploymentsChecked int, err error) {
	if t == nil {
		return
	}
	now := t.now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCycle = now
	t.cycleDuration = duration
	t.deploymentsChecked = deploymentsChecked
	if err != nil {
		t.failures++
		t.lastErr = err.Error()
		return
	}
	t.failures = 0
	t.lastErr = ""
	t.lastSuccess = now
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		LastCycleTime:       timePtr(t.lastCycle),
		LastSuccessTime:     timePtr(t.lastSuccess),
		CycleDurationMS:     int64(t.cycleDuration / time.Millisecond),
		DeploymentsChecked:  t.deploymentsChecked,
		ConsecutiveFailures: t.failures,
		LastError:           t.lastErr,
	}
}

// Ready reports whether at least one successful cycle has completed.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.lastSuccess.IsZero()
}

// Healthy reports whether the last successful cycle completed within 2x the
// poll interval.
func (t *Tracker) Healthy(now time.Time, pollInterval time.Duration) bool {
	if t == nil || pollInterval <= 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastSuccess.IsZero() {
		return false
	}
	return now.Sub(t.lastSuccess) <= 2*pollInterval
}

func timePtr(v time.Time) *time.Time {
	if v.IsZero() {
		return nil
	}
	return &v
}
