package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsUpdates(t *testing.T) {
	m := New()

	m.ObserveCycleDuration(2 * time.Second)
	m.ObserveDeployment("install", "success", 30*time.Second)
	m.IncStep("success")
	m.IncStep("failed")
	m.IncPullFallback()
	m.SetStackHealth("env-1", "shop", 2)
	m.SetServicesTotal("shop", "Healthy", 3)
	m.IncNotifications("deployment.failed")
	m.IncDockerAPIErrors()
	m.AddSnapshotsPruned(4)
	m.AddSnapshotsPruned(0)
	m.SetLastSuccessfulCycleTimestamp(time.Unix(100, 0))

	if got := testutil.ToFloat64(m.deploymentsTotal.WithLabelValues("install", "success")); got != 1 {
		t.Fatalf("expected 1 successful install, got %v", got)
	}
	if got := testutil.ToFloat64(m.stepsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed step, got %v", got)
	}
	if got := testutil.ToFloat64(m.pullFallbacksTotal); got != 1 {
		t.Fatalf("expected 1 pull fallback, got %v", got)
	}
	if got := testutil.ToFloat64(m.stackHealthStatus.WithLabelValues("env-1", "shop")); got != 2 {
		t.Fatalf("expected stack health 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.servicesTotal.WithLabelValues("shop", "Healthy")); got != 3 {
		t.Fatalf("expected 3 healthy services, got %v", got)
	}
	if got := testutil.ToFloat64(m.notificationsTotal.WithLabelValues("deployment.failed")); got != 1 {
		t.Fatalf("expected 1 notification, got %v", got)
	}
	if got := testutil.ToFloat64(m.dockerAPIErrorsTotal); got != 1 {
		t.Fatalf("expected docker api errors 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.snapshotsPrunedTotal); got != 4 {
		t.Fatalf("expected 4 pruned snapshots, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccessfulCycleGauge); got != 100 {
		t.Fatalf("expected last successful cycle 100, got %v", got)
	}
	if count := testutil.CollectAndCount(m.cycleDurationSeconds); count == 0 {
		t.Fatalf("expected cycle duration histogram to be collected")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCycleDuration(time.Second)
	m.ObserveDeployment("install", "failed", time.Second)
	m.IncStep("success")
	m.IncPullFallback()
	m.SetStackHealth("env", "stack", 1)
	m.IncDockerAPIErrors()
	m.AddSnapshotsPruned(1)
	if m.Handler() == nil {
		t.Fatalf("expected default handler")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.IncPullFallback()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "rsgo_image_pull_fallbacks_total 1") {
		t.Fatalf("expected pull fallback metric in output")
	}
}
