// Package metrics exposes engine activity as Prometheus collectors.
// It observes the action and change buses of one engine and counts
// dispatches, internal redispatches and store changes.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/fluxr/internal/flux"
)

// Collector provides engine metrics collection.
type Collector struct {
	registry *prometheus.Registry

	dispatches         *prometheus.CounterVec
	internalDispatches *prometheus.CounterVec
	changes            *prometheus.CounterVec
	queueDepth         prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "fluxr"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "dispatch_total",
			Help:      "Actions dispatched, by channel",
		},
		[]string{"channel"},
	)
	c.internalDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "internal_dispatch_total",
			Help:      "Actions dispatched with the INTERNAL tag, by channel",
		},
		[]string{"channel"},
	)
	c.changes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "change_total",
			Help:      "Store changes broadcast, by store",
		},
		[]string{"store"},
	)
	c.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "queue_depth",
			Help:      "Deferred tasks pending at the last dispatch",
		},
	)

	c.registry.MustRegister(c.dispatches, c.internalDispatches, c.changes, c.queueDepth)
	return c
}

// Registry returns the registry holding the collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Attach starts counting activity on e. Dispose the subscription to stop.
func (c *Collector) Attach(e *flux.Engine) *flux.Subscription {
	actions := e.ObserveActions(func(env flux.Envelope) {
		ch := env.Action.ID()
		c.dispatches.WithLabelValues(ch).Inc()
		if env.Tags.Has(flux.TagInternal) {
			c.internalDispatches.WithLabelValues(ch).Inc()
		}
		c.queueDepth.Set(float64(e.QueueLen()))
	})
	changes := e.Observe(nil, func(sc flux.StoreChange) {
		c.changes.WithLabelValues(sc.Store.ID()).Inc()
	})
	return flux.JoinSubscriptions(actions, changes)
}

// WriteText writes every metric family in the Prometheus text format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
