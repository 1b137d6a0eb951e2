// Package metrics holds the Prometheus collectors for the BOM engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	expansions *prometheus.CounterVec
	takeoffs   *prometheus.CounterVec
	lineItems  prometheus.Counter
	duration   *prometheus.HistogramVec
}

// NewRecorder builds the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		expansions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipetooling",
			Name:      "bom_expansions_total",
			Help:      "Template expansions by result.",
		}, []string{"result"}),
		takeoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipetooling",
			Name:      "takeoff_actions_total",
			Help:      "Takeoff actions by mode and result.",
		}, []string{"mode", "result"}),
		lineItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipetooling",
			Name:      "po_line_items_written_total",
			Help:      "Purchase-order line items inserted by takeoff actions.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipetooling",
			Name:      "takeoff_duration_seconds",
			Help:      "Duration of takeoff actions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}
	reg.MustRegister(r.expansions, r.takeoffs, r.lineItems, r.duration)
	return r
}

// Expansion counts one template expansion. result is "ok", "cycle" or "error".
func (r *Recorder) Expansion(result string) {
	if r == nil {
		return
	}
	r.expansions.WithLabelValues(result).Inc()
}

// Takeoff records one takeoff action and its duration.
func (r *Recorder) Takeoff(mode, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.takeoffs.WithLabelValues(mode, result).Inc()
	r.duration.WithLabelValues(mode).Observe(d.Seconds())
}

// LineItems adds n written line items.
func (r *Recorder) LineItems(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.lineItems.Add(float64(n))
}
