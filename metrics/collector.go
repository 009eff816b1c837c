// Package metrics exports flow activity as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/engine"
	"github.com/AntoineDubuc/conclave/model"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "conclave"

// OutcomeSuccess labels participant calls that returned content.
const OutcomeSuccess = "success"

// Collector records participant calls, rounds and flows. Attach it to an
// engine.CallbackManager with Register.
type Collector struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	roundsTotal  *prometheus.CounterVec
	flowsTotal   *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them on reg. A nil reg
// leaves them unregistered; an empty namespace uses DefaultNamespace.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Collector{
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "participant_calls_total",
				Help:      "Total number of participant calls",
			},
			[]string{"provider", "phase", "outcome"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "participant_call_duration_seconds",
				Help:      "Participant call duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
		roundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_total",
				Help:      "Total number of executed rounds",
			},
			[]string{"topology", "phase"},
		),
		flowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_total",
				Help:      "Total number of finished flows",
			},
			[]string{"topology", "outcome"},
		),
	}
}

// RecordCall records one participant call. A failed call is labelled with
// its error kind.
func (c *Collector) RecordCall(provider string, phase core.Phase, err error, d time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = string(model.KindOf(err))
	}
	c.callsTotal.WithLabelValues(provider, string(phase), outcome).Inc()
	c.callDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordRound records one executed round.
func (c *Collector) RecordRound(topology core.Topology, phase core.Phase) {
	c.roundsTotal.WithLabelValues(string(topology), string(phase)).Inc()
}

// RecordFlow records one finished flow.
func (c *Collector) RecordFlow(topology core.Topology, outcome core.Outcome) {
	c.flowsTotal.WithLabelValues(string(topology), string(outcome)).Inc()
}

// Register attaches the collector to cm.
func (c *Collector) Register(cm *engine.CallbackManager) {
	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackAfterCall, func(_ context.Context, cc *engine.CallbackContext) error {
		if resp := cc.Response; resp != nil {
			c.RecordCall(cc.Provider, resp.Phase, resp.Err, resp.Duration)
		}
		return nil
	}))

	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackAfterRound, func(_ context.Context, cc *engine.CallbackContext) error {
		c.RecordRound(cc.Topology, cc.Phase)
		return nil
	}))

	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackAfterFlow, func(_ context.Context, cc *engine.CallbackContext) error {
		if cc.Result != nil {
			c.RecordFlow(cc.Result.Topology, cc.Result.Outcome)
		}
		return nil
	}))
}
