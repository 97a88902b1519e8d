package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/multierr"
)

// Recorder receives one metric per generation call.
type Recorder interface {
	Record(ctx context.Context, m ExecutionMetric) error
}

// SetupPrometheus creates a registry with the Go runtime and process collectors.
func SetupPrometheus() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Collector exports generation calls as Prometheus metrics.
type Collector struct {
	CounterPlanRequests *prometheus.CounterVec
	HistPlanLatency     *prometheus.HistogramVec
	CounterRateLimited  prometheus.Counter
}

func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		CounterPlanRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_requests_total",
			Help:      "The total number of plan generation calls",
		}, []string{"kind", "outcome"}),
		HistPlanLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_request_duration_seconds",
			Help:      "Histogram of plan service response time in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"kind"}),
		CounterRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "The total number of chat commands rejected by the rate limiter",
		}),
	}
}

// Record implements Recorder.
func (c *Collector) Record(_ context.Context, m ExecutionMetric) error {
	c.CounterPlanRequests.WithLabelValues(m.Kind, m.Outcome).Inc()
	c.HistPlanLatency.WithLabelValues(m.Kind).Observe(float64(m.LatencyMS) / 1000)
	return nil
}

type tee []Recorder

// Tee records every metric to each of recorders.
func Tee(recorders ...Recorder) Recorder {
	return tee(recorders)
}

func (t tee) Record(ctx context.Context, m ExecutionMetric) error {
	var err error
	for _, r := range t {
		err = multierr.Append(err, r.Record(ctx, m))
	}
	return err
}
