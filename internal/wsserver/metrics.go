package wsserver

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors, registered on the
// default registry so promhttp.Handler serves them.
type Metrics struct {
	bases        prometheus.Counter
	commits      prometheus.Counter
	conflicts    prometheus.Counter
	errors       prometheus.Counter
	sessionsOpen prometheus.Gauge
	reaped       prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics returns the service collectors. Collectors are process-global
// because promauto registers them once; repeated servers share them.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = newMetrics()
	})
	return sharedMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		bases: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_workspace_bases_created_total",
			Help: "Base snapshots created.",
		}),
		commits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_workspace_commits_total",
			Help: "Session commits that produced a new base.",
		}),
		conflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_workspace_commit_conflicts_total",
			Help: "Commits rejected because the base was no longer the lineage head.",
		}),
		errors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_workspace_errors_total",
			Help: "Requests that returned an error status.",
		}),
		sessionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "warden_workspace_sessions_open",
			Help: "Sessions currently open.",
		}),
		reaped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "warden_workspace_sessions_reaped_total",
			Help: "Idle sessions discarded by the reaper.",
		}),
	}
}
