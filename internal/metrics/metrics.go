// ABOUTME: Prometheus instrumentation for batches, slots and storage quota
// ABOUTME: Metrics register on a caller-supplied registry and can be flushed to a textfile

package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "slotforge"

// Metrics holds every collector slotforge exports.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// BatchesStarted counts batches by kind.
	BatchesStarted *prometheus.CounterVec

	// BatchesInFlight tracks batches whose slots have not all settled.
	BatchesInFlight *prometheus.GaugeVec

	// SlotsSettled counts slot transitions to a terminal state.
	// Labels: kind, status (success, error)
	SlotsSettled *prometheus.CounterVec

	// SlotRetries counts retries of failed slots by kind.
	SlotRetries *prometheus.CounterVec

	// QuotaRejections counts store writes dropped for capacity.
	QuotaRejections prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BatchesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "batches_started_total",
			Help:      "Batches started by kind",
		}, []string{"kind"}),
		BatchesInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "batches_in_flight",
			Help:      "Batches with at least one loading slot",
		}, []string{"kind"}),
		SlotsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "slots_settled_total",
			Help:      "Slots that reached a terminal state by kind and status",
		}, []string{"kind", "status"}),
		SlotRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "slot_retries_total",
			Help:      "Retries of failed slots by kind",
		}, []string{"kind"}),
		QuotaRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "quota_rejections_total",
			Help:      "Store writes dropped because the storage quota was exceeded",
		}),
		gatherer: reg,
	}
}

// BatchStarted records a new batch of kind.
func (m *Metrics) BatchStarted(kind string) {
	if m == nil {
		return
	}
	m.BatchesStarted.WithLabelValues(kind).Inc()
	m.BatchesInFlight.WithLabelValues(kind).Inc()
}

// BatchSettled records that every slot of a batch has settled.
func (m *Metrics) BatchSettled(kind string) {
	if m == nil {
		return
	}
	m.BatchesInFlight.WithLabelValues(kind).Dec()
}

// SlotSettled records one terminal slot transition.
func (m *Metrics) SlotSettled(kind, status string) {
	if m == nil {
		return
	}
	m.SlotsSettled.WithLabelValues(kind, status).Inc()
}

// SlotRetried records one retry.
func (m *Metrics) SlotRetried(kind string) {
	if m == nil {
		return
	}
	m.SlotRetries.WithLabelValues(kind).Inc()
}

// QuotaRejected records one dropped write. It has the signature of a quota
// bus subscriber.
func (m *Metrics) QuotaRejected() {
	if m == nil {
		return
	}
	m.QuotaRejections.Inc()
}

// WriteTextfile writes every registered metric to path in the text
// exposition format, for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
