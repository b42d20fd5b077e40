package interceptors

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/glimte/mmate-dispatch/messaging"
)

// MetricsInterceptor records Prometheus metrics for every delivery
type MetricsInterceptor struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
}

// NewMetricsInterceptor creates the collectors under namespace and registers
// them with reg. A nil reg uses the default Prometheus registerer.
func NewMetricsInterceptor(reg prometheus.Registerer, namespace string) (*MetricsInterceptor, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &MetricsInterceptor{
		processed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "messages_processed_total",
				Help:      "Total number of messages handled, by action and result",
			},
			[]string{"action", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "message_processing_duration_seconds",
				Help:      "Message handler duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "messages_in_flight",
				Help:      "Number of messages currently being handled",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.processed, m.duration, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Intercept implements Interceptor
func (m *MetricsInterceptor) Intercept(ctx context.Context, d *messaging.Delivery, next messaging.MessageHandler) error {
	m.inFlight.Inc()
	defer m.inFlight.Dec()

	start := time.Now()
	err := next.Handle(ctx, d)
	m.duration.WithLabelValues(d.Action).Observe(time.Since(start).Seconds())

	result := "success"
	if err != nil {
		result = "error"
	}
	m.processed.WithLabelValues(d.Action, result).Inc()

	return err
}

// Name implements Interceptor
func (m *MetricsInterceptor) Name() string {
	return "MetricsInterceptor"
}
