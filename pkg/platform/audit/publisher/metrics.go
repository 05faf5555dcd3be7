package publisher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit publishing.
type Metrics struct {
	Published        *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	ErrorsDropped    prometheus.Counter
	QueueDepth       *prometheus.GaugeVec
	Abandoned        *prometheus.CounterVec
}

// NewMetrics registers publisher metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditd_publish_total",
			Help: "Publish calls by topic and outcome",
		}, []string{"topic", "outcome"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditd_handler_deliveries_total",
			Help: "Handler deliveries by topic, handler and result",
		}, []string{"topic", "handler", "result"}),
		DeliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditd_handler_delivery_duration_seconds",
			Help:    "Time spent delivering one record to one handler",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"handler"}),
		ErrorsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "auditd_delivery_errors_dropped_total",
			Help: "Delivery errors not reported on the error channel because it was full",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "auditd_handler_queue_depth",
			Help: "Records waiting in a handler's async queue",
		}, []string{"handler"}),
		Abandoned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditd_handler_abandoned_total",
			Help: "Handler calls still running when their delivery timed out",
		}, []string{"handler"}),
	}
}

func (m *Metrics) IncPublished(topic, outcome string) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(topic, outcome).Inc()
}

// ObserveDelivery records one handler delivery. result is "ok", "error", "timeout" or "queue_full".
func (m *Metrics) ObserveDelivery(topic, handler, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(topic, handler, result).Inc()
	if d > 0 {
		m.DeliveryDuration.WithLabelValues(handler).Observe(d.Seconds())
	}
}

func (m *Metrics) IncErrorsDropped() {
	if m == nil {
		return
	}
	m.ErrorsDropped.Inc()
}

func (m *Metrics) SetQueueDepth(handler string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(handler).Set(float64(depth))
}

func (m *Metrics) IncAbandoned(handler string) {
	if m == nil {
		return
	}
	m.Abandoned.WithLabelValues(handler).Inc()
}
