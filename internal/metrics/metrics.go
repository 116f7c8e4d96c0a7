package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for rsgo. All methods are nil-safe.
type Metrics struct {
	registry                  *prometheus.Registry
	cycleDurationSeconds      prometheus.Histogram
	deploymentsTotal          *prometheus.CounterVec
	deploymentDurationSeconds *prometheus.HistogramVec
	stepsTotal                *prometheus.CounterVec
	pullFallbacksTotal        prometheus.Counter
	stackHealthStatus         *prometheus.GaugeVec
	servicesTotal             *prometheus.GaugeVec
	notificationsTotal        *prometheus.CounterVec
	dockerAPIErrorsTotal      prometheus.Counter
	snapshotsPrunedTotal      prometheus.Counter
	lastSuccessfulCycleGauge  prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		cycleDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsgo_health_cycle_duration_seconds",
			Help:    "Duration of health capture cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		deploymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsgo_deployments_total",
			Help: "Deployment operations by kind and result.",
		}, []string{"kind", "result"}),
		deploymentDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rsgo_deployment_duration_seconds",
			Help:    "Duration of deployment plan executions in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsgo_deployment_steps_total",
			Help: "Executed deployment steps by result.",
		}, []string{"result"}),
		pullFallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsgo_image_pull_fallbacks_total",
			Help: "Image pulls that failed and fell back to a local image.",
		}),
		stackHealthStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rsgo_stack_health_status",
			Help: "Overall stack health severity (0 healthy, 1 unknown, 2 degraded, 3 unhealthy).",
		}, []string{"environment", "stack"}),
		servicesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rsgo_services_total",
			Help: "Total services by stack and status.",
		}, []string{"stack", "status"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsgo_notifications_total",
			Help: "Notifications emitted by event type.",
		}, []string{"type"}),
		dockerAPIErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsgo_docker_api_errors_total",
			Help: "Total Docker API errors after retries.",
		}),
		snapshotsPrunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsgo_health_snapshots_pruned_total",
			Help: "Health snapshots removed by retention pruning.",
		}),
		lastSuccessfulCycleGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsgo_last_successful_cycle_timestamp",
			Help: "Unix timestamp of the last successful health cycle.",
		}),
	}

	registry.MustRegister(
		m.cycleDurationSeconds,
		m.deploymentsTotal,
		m.deploymentDurationSeconds,
		m.stepsTotal,
		m.pullFallbacksTotal,
		m.stackHealthStatus,
		m.servicesTotal,
		m.notificationsTotal,
		m.dockerAPIErrorsTotal,
		m.snapshotsPrunedTotal,
		m.lastSuccessfulCycleGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycleDuration records the duration of a completed health cycle.
func (m *Metrics) ObserveCycleDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveDeployment records the outcome and duration of a plan execution.
func (m *Metrics) ObserveDeployment(kind, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.deploymentsTotal.WithLabelValues(kind, result).Inc()
	m.deploymentDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// IncStep counts an executed deployment step.
func (m *Metrics) IncStep(result string) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(result).Inc()
}

// IncPullFallback counts an image pull that fell back to a local image.
func (m *Metrics) IncPullFallback() {
	if m == nil {
		return
	}
	m.pullFallbacksTotal.Inc()
}

// SetStackHealth sets the overall severity of a stack.
func (m *Metrics) SetStackHealth(environment, stack string, severity int) {
	if m == nil {
		return
	}
	m.stackHealthStatus.WithLabelValues(environment, stack).Set(float64(severity))
}

// SetServicesTotal sets the services gauge for the given stack/status.
func (m *Metrics) SetServicesTotal(stack string, status string, value int) {
	if m == nil {
		return
	}
	m.servicesTotal.WithLabelValues(stack, status).Set(float64(value))
}

// IncNotifications counts a dispatched event notification.
func (m *Metrics) IncNotifications(eventType string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(eventType).Inc()
}

// IncDockerAPIErrors increments the Docker API error counter.
func (m *Metrics) IncDockerAPIErrors() {
	if m == nil {
		return
	}
	m.dockerAPIErrorsTotal.Inc()
}

// AddSnapshotsPruned counts snapshots removed by retention.
func (m *Metrics) AddSnapshotsPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.snapshotsPrunedTotal.Add(float64(n))
}

// SetLastSuccessfulCycleTimestamp sets the last successful cycle time.
func (m *Metrics) SetLastSuccessfulCycleTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulCycleGauge.Set(float64(t.Unix()))
}
