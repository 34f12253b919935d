package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IntakeMetrics exposes counters/histograms for intake sessions.
type IntakeMetrics struct {
	turnsTotal      *prometheus.CounterVec
	turnLatency     *prometheus.HistogramVec
	repairTotal     *prometheus.CounterVec
	emergencyTotal  prometheus.Counter
	modelLatency    *prometheus.HistogramVec
	slotFallbacks   *prometheus.CounterVec
	sessionsStarted prometheus.Counter
	queueDepth      prometheus.Gauge
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Handled turns by resulting step and path",
		}, []string{"step", "path"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "engine",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end latency of a turn including persistence",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		repairTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "engine",
			Name:      "model_repair_total",
			Help:      "Model replies by the repair stage that produced them",
		}, []string{"stage"}),
		emergencyTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "engine",
			Name:      "emergencies_total",
			Help:      "Sessions flagged as emergencies",
		}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Latency of model completions",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"purpose", "outcome"}),
		slotFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "scheduling",
			Name:      "slot_fallback_total",
			Help:      "Booking offers built from degraded availability",
		}, []string{"reason"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "sessions",
			Name:      "started_total",
			Help:      "Sessions started",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intake",
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Turns waiting in the in-process queue",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.repairTotal, m.emergencyTotal,
		m.modelLatency, m.slotFallbacks, m.sessionsStarted, m.queueDepth)
	return m
}

func (m *IntakeMetrics) ObserveTurn(step, path string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(step, path).Inc()
	m.turnLatency.WithLabelValues(path).Observe(elapsed.Seconds())
}

func (m *IntakeMetrics) ObserveRepair(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.repairTotal.WithLabelValues(stage).Inc()
}

func (m *IntakeMetrics) ObserveEmergency() {
	if m == nil {
		return
	}
	m.emergencyTotal.Inc()
}

// ObserveModelLatency satisfies llm.LatencyObserver.
func (m *IntakeMetrics) ObserveModelLatency(purpose, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.modelLatency.WithLabelValues(purpose, outcome).Observe(d.Seconds())
}

func (m *IntakeMetrics) ObserveSlotFallback(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.slotFallbacks.WithLabelValues(reason).Inc()
}

func (m *IntakeMetrics) ObserveSessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *IntakeMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
