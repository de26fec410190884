package registry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	operations *prometheus.CounterVec
	active     prometheus.Gauge
	installed  prometheus.Gauge
	registry   *Registry
}

// newMetrics creates the registry's collectors; with a nil registerer they
// are created but not registered anywhere.
func newMetrics(registerer prometheus.Registerer) *metrics {
	factory := promauto.With(registerer)
	return &metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "componenthost",
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Registry operations by operation and result.",
		}, []string{"operation", "result"}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "componenthost",
			Name:      "active_components",
			Help:      "Number of currently loaded components.",
		}),
		installed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "componenthost",
			Name:      "installed_components",
			Help:      "Number of installed user components.",
		}),
	}
}

// observe binds the gauges to a registry and takes an initial reading.
// Must be called with the registry lock held, or before it is shared.
func (m *metrics) observe(r *Registry) {
	m.registry = r
	m.update()
}

func (m *metrics) update() {
	m.active.Set(float64(m.registry.active.Len()))
	m.installed.Set(float64(m.registry.store.Len()))
}

func (m *metrics) record(operation string, err error) {
	m.operations.WithLabelValues(operation, resultLabel(err)).Inc()
	m.update()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNameCollision):
		return "name_collision"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "error"
}
