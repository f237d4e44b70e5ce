// Package metrics exposes Prometheus collectors for the server process,
// grounded on adred-codev-ws_poc/go-server-3's internal/metrics/metrics.go
// (promauto gauge/counter construction, Handler()) and the go-server
// sibling's use of shirou/gopsutil/v3 for process self-observability.
package metrics

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
)

// Registry wraps every Prometheus collector the server maintains:
// connection counts, command throughput split by outcome, keyspace hit
// ratio, and replication progress (spec.md §2's C12 background tasks and
// C7 dispatcher are this registry's feeders).
type Registry struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	CommandsProcessed prometheus.Counter
	CommandErrors     *prometheus.CounterVec // label: class (protocol, wrongtype, arity, readonly, unknown, other)

	KeyspaceHits   prometheus.Counter
	KeyspaceMisses prometheus.Counter

	ReplicationOffset prometheus.Gauge
	ConnectedReplicas prometheus.Gauge

	ProcessRSSBytes prometheus.Gauge
	ProcessCPUPct   prometheus.Gauge

	proc *process.Process
}

// NewRegistry constructs and registers every collector.
func NewRegistry() *Registry {
	r := &Registry{
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cedis_connections_active",
			Help: "Number of currently connected clients.",
		}),
		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cedis_connections_total",
			Help: "Total number of client connections accepted.",
		}),
		CommandsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cedis_commands_processed_total",
			Help: "Total number of commands dispatched.",
		}),
		CommandErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cedis_command_errors_total",
			Help: "Total number of command errors by class.",
		}, []string{"class"}),
		KeyspaceHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cedis_keyspace_hits_total",
			Help: "Total number of successful key lookups.",
		}),
		KeyspaceMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cedis_keyspace_misses_total",
			Help: "Total number of key lookups that found nothing.",
		}),
		ReplicationOffset: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cedis_replication_offset",
			Help: "This node's current replication byte offset.",
		}),
		ConnectedReplicas: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cedis_connected_replicas",
			Help: "Number of followers currently attached to this primary.",
		}),
		ProcessRSSBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cedis_process_rss_bytes",
			Help: "Resident set size of the server process, sampled via gopsutil.",
		}),
		ProcessCPUPct: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cedis_process_cpu_percent",
			Help: "Process CPU utilization percent, sampled via gopsutil.",
		}),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		r.proc = p
	}
	return r
}

// SampleProcess refreshes the gopsutil-derived gauges; called from the
// background maintenance loop (C12) alongside active expiration.
func (r *Registry) SampleProcess() {
	if r.proc == nil {
		return
	}
	if mem, err := r.proc.MemoryInfo(); err == nil && mem != nil {
		r.ProcessRSSBytes.Set(float64(mem.RSS))
	}
	if pct, err := r.proc.CPUPercent(); err == nil {
		r.ProcessCPUPct.Set(pct)
	}
}

// ProcessStats reads the process's current RSS bytes and CPU percent from
// gopsutil; it does not update the gauges.
func (r *Registry) ProcessStats() (rssBytes uint64, cpuPct float64) {
	if r.proc == nil {
		return 0, 0
	}
	mem, err := r.proc.MemoryInfo()
	if err != nil || mem == nil {
		return 0, 0
	}
	pct, _ := r.proc.CPUPercent()
	return mem.RSS, pct
}

// Handler returns an HTTP handler exposing Prometheus metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
