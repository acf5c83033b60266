// Package metrics holds the exporter's own instrumentation: how refresh
// cycles went, per-vehicle freshness, and the telemetry mirror.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "polestar"
	subsystem = "exporter"
)

// Cycle results used as the "result" label of RefreshCyclesTotal.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultTimeout = "timeout"
)

var (
	// RefreshCyclesTotal counts finished refresh cycles by outcome.
	RefreshCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "refresh_cycles_total",
			Help:      "Total number of refresh cycles by result (success, error, timeout).",
		},
		[]string{"result"},
	)

	// RefreshDuration observes how long completed cycles took.
	RefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of completed refresh cycles.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	// RefreshState is 1 for the refresh loop's current state and 0 otherwise.
	RefreshState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "refresh_state",
			Help:      "Current state of the refresh loop (1 for the active state).",
		},
		[]string{"state"},
	)

	// VehicleUp is 1 when the last refresh of a vehicle succeeded.
	VehicleUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "up",
			Help:      "Whether the last refresh of the vehicle succeeded (1) or failed (0).",
		},
		[]string{"vin"},
	)

	// LastSuccessTimestamp records when a vehicle was last refreshed successfully.
	LastSuccessTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh of the vehicle.",
		},
		[]string{"vin"},
	)

	// MirrorMessagesTotal counts snapshots handled by the MQTT mirror.
	MirrorMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mirror_messages_total",
			Help:      "Snapshots handled by the MQTT mirror by result (published, failed, dropped).",
		},
		[]string{"result"},
	)
)

// Collectors returns every exporter self-metric.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RefreshCyclesTotal,
		RefreshDuration,
		RefreshState,
		VehicleUp,
		LastSuccessTimestamp,
		MirrorMessagesTotal,
	}
}

// Register adds the self-metrics to reg. A collector already present in reg
// is left as is, so the same registry may be prepared more than once.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
