package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
)

var UnitsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "searchsync",
	Subsystem: "snapshot",
	Name:      "units_emitted",
}, []string{"database", "index"})

var UnitsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "searchsync",
	Subsystem: "snapshot",
	Name:      "units_completed",
}, []string{"database", "index"})

var UnitsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "searchsync",
	Subsystem: "snapshot",
	Name:      "units_failed",
}, []string{"database", "index"})

var DocsIndexed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "searchsync",
	Subsystem: "snapshot",
	Name:      "docs_indexed",
}, []string{"database", "index"})

var UnitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "searchsync",
	Subsystem: "snapshot",
	Name:      "unit_duration",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
}, []string{"database", "index"})

var CheckpointPage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "searchsync",
	Subsystem: "snapshot",
	Name:      "checkpoint_page",
}, []string{"database", "index"})

var CheckpointRow = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "searchsync",
	Subsystem: "snapshot",
	Name:      "checkpoint_row",
}, []string{"database", "index"})

var CatchupTxMax = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "searchsync",
	Subsystem: "snapshot",
	Name:      "catchup_txmax",
}, []string{"database", "index"})

// Metrics lists the package collectors for registration by the caller.
func Metrics() []prometheus.Collector {
	return []prometheus.Collector{
		UnitsEmitted,
		UnitsCompleted,
		UnitsFailed,
		DocsIndexed,
		UnitDuration,
		CheckpointPage,
		CheckpointRow,
		CatchupTxMax,
	}
}
