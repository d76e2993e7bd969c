package observability

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics collects counters for the offline sync engine.
type SyncMetrics struct {
	pushes        prometheus.Counter
	pushedRecords prometheus.Counter
	deltaRows     prometheus.Counter
	lockFailures  prometheus.Counter
}

// NewSyncMetrics registers the sync collectors. A nil registerer uses
// the default Prometheus registerer.
func NewSyncMetrics(registerer prometheus.Registerer) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &SyncMetrics{
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gestia_sync_pushes_total",
			Help: "Completed push transactions.",
		}),
		pushedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gestia_sync_pushed_records_total",
			Help: "Records written by push transactions, lines included.",
		}),
		deltaRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gestia_sync_delta_rows_total",
			Help: "Rows returned by delta exports.",
		}),
		lockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gestia_sync_lock_failures_total",
			Help: "Tenant lock acquisitions that timed out.",
		}),
	}
	registerer.MustRegister(m.pushes, m.pushedRecords, m.deltaRows, m.lockFailures)
	return m
}

// ObservePush records one committed push of n records.
func (m *SyncMetrics) ObservePush(n int) {
	if m == nil {
		return
	}
	m.pushes.Inc()
	m.pushedRecords.Add(float64(n))
}

// ObserveDelta records the size of one delta export.
func (m *SyncMetrics) ObserveDelta(n int) {
	if m == nil {
		return
	}
	m.deltaRows.Add(float64(n))
}

// LockFailed records a tenant lock wait that gave up.
func (m *SyncMetrics) LockFailed() {
	if m == nil {
		return
	}
	m.lockFailures.Inc()
}
