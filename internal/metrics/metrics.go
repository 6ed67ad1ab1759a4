package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Location metrics
	SamplesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchclock_location_samples_persisted_total",
			Help: "Location samples persisted, by write path (rpc or table)",
		},
		[]string{"path"},
	)

	SamplesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "punchclock_location_samples_dropped_total",
			Help: "Location samples dropped after both write paths failed",
		},
	)

	InboxOverflow = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "punchclock_location_inbox_overflow_total",
			Help: "Location batches discarded because the monitor inbox was full",
		},
	)

	MonitorActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "punchclock_location_monitor_active",
			Help: "1 while a location monitoring session is active",
		},
	)

	// Punch metrics
	PunchesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchclock_punches_recorded_total",
			Help: "Punches written to the backend, by kind",
		},
		[]string{"kind"},
	)

	PunchesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchclock_punches_rejected_total",
			Help: "Punch attempts rejected on the client, by reason",
		},
		[]string{"reason"},
	)
)
