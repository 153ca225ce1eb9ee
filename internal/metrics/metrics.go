// Package metrics holds the Prometheus collectors of the discovery and
// state-sync engine. Collectors are registered on Registry, which the bridge
// serves on /metrics; the CLI never exposes it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bluos"

// Result labels
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultCancelled = "cancelled"
	ResultInvalid   = "invalid" // malformed or unexpected document
)

// Registry is the registry every collector in this package belongs to
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// DiscoveryQueries counts mDNS PTR queries sent
	DiscoveryQueries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "queries_total",
		Help:      "mDNS queries sent while looking for a player.",
	})

	// DiscoveryResolutions counts complete PTR/SRV/A chains that produced an endpoint
	DiscoveryResolutions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "resolutions_total",
		Help:      "Player endpoints resolved from mDNS responses.",
	})

	// StatusPolls counts /Status requests by result
	StatusPolls = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "status",
		Name:      "polls_total",
		Help:      "Long-poll /Status requests by result.",
	}, []string{"result"})

	// SyncStatusFetches counts /SyncStatus requests by result
	SyncStatusFetches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_status",
		Name:      "fetches_total",
		Help:      "/SyncStatus requests by result.",
	}, []string{"result"})

	// StateEmissions counts normalized snapshots handed to consumers
	StateEmissions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "state",
		Name:      "emissions_total",
		Help:      "Distinct normalized state snapshots emitted.",
	})

	// BackoffDelay is the current status-poll retry delay, 0 while healthy
	BackoffDelay = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "status",
		Name:      "backoff_seconds",
		Help:      "Delay before the next /Status retry; 0 after a success.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
