package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/trace"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver exports step invocation counts and durations.
type PrometheusObserver struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    *prometheus.GaugeVec
}

var _ trace.Observer = (*PrometheusObserver)(nil)

// PrometheusOption configures a PrometheusObserver.
type PrometheusOption func(*prometheusConfig)

type prometheusConfig struct {
	namespace string
	buckets   []float64
}

// WithNamespace overrides the metric namespace. Defaults to "stepflow".
func WithNamespace(ns string) PrometheusOption {
	return func(c *prometheusConfig) { c.namespace = ns }
}

// WithBuckets overrides the duration histogram buckets, in seconds.
func WithBuckets(buckets ...float64) PrometheusOption {
	return func(c *prometheusConfig) { c.buckets = buckets }
}

// NewPrometheusObserver creates the collectors and registers them on reg.
// Registering twice on the same registerer reuses the existing collectors.
func NewPrometheusObserver(reg prometheus.Registerer, opts ...PrometheusOption) (*PrometheusObserver, error) {
	cfg := prometheusConfig{namespace: "stepflow", buckets: prometheus.DefBuckets}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &PrometheusObserver{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.namespace,
				Name:      "step_invocations_total",
				Help:      "Total number of step invocations by outcome.",
			},
			[]string{"graph", "node", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step invocations.",
				Buckets:   cfg.buckets,
			},
			[]string{"graph", "node"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.namespace,
				Name:      "steps_in_flight",
				Help:      "Step invocations currently running.",
			},
			[]string{"graph"},
		),
	}

	if reg == nil {
		return p, nil
	}
	var err error
	if p.invocations, err = register(reg, p.invocations); err != nil {
		return nil, err
	}
	if p.duration, err = register(reg, p.duration); err != nil {
		return nil, err
	}
	if p.inFlight, err = register(reg, p.inFlight); err != nil {
		return nil, err
	}
	return p, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register step metrics: %w", err)
	}
	return c, nil
}

// Collectors returns the underlying collectors, for registries managed by the caller.
func (p *PrometheusObserver) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.invocations, p.duration, p.inFlight}
}

func (p *PrometheusObserver) StepStarted(_ context.Context, rec domain.StepRecord) error {
	p.inFlight.WithLabelValues(rec.Graph).Inc()
	return nil
}

func (p *PrometheusObserver) StepFinished(_ context.Context, rec domain.StepRecord) error {
	p.inFlight.WithLabelValues(rec.Graph).Dec()
	p.invocations.WithLabelValues(rec.Graph, rec.Node, string(rec.Outcome)).Inc()
	p.duration.WithLabelValues(rec.Graph, rec.Node).Observe(rec.Duration.Seconds())
	return nil
}
