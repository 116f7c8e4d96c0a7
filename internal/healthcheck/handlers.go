package healthcheck

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const pingTimeout = 3 * time.Second

// Pinger checks a dependency such as the Docker daemon.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves /healthz responses.
func HealthHandler(tracker *Tracker, pollInterval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusServiceUnavailable
		if tracker.Healthy(time.Now().UTC(), pollInterval) {
			status = http.StatusOK
		}
		writeJSON(w, status, tracker.Snapshot())
	}
}

// ReadyHandler serves /readyz responses. The process is ready after a
// successful cycle while the Docker daemon answers pings.
func ReadyHandler(tracker *Tracker, docker Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := tracker.Snapshot()
		ready := tracker.Ready()
		if docker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			err := docker.Ping(ctx)
			cancel()
			if err != nil {
				snapshot.Docker = "unreachable: " + err.Error()
				ready = false
			} else {
				snapshot.Docker = "ok"
			}
		}
		status := http.StatusServiceUnavailable
		if ready {
			status = http.StatusOK
		}
		writeJSON(w, status, snapshot)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload Snapshot) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
