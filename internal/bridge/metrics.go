package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/meterthing/internal/obis"
	"github.com/nerrad567/meterthing/internal/thing"
)

const metricsNamespace = "meterthing"

// Metrics holds the Prometheus collectors for one loop.
type Metrics struct {
	readings    prometheus.Counter
	updates     *prometheus.CounterVec
	failures    *prometheus.CounterVec
	values      *prometheus.GaugeVec
	lastReading prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		readings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "readings_total",
			Help:      "Readings applied to the thing, including the initial one.",
		}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "property_updates_total",
			Help:      "Property value updates, by property.",
		}, []string{"property"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failures_total",
			Help:      "Fatal sync loop failures, by reason.",
		}, []string{"reason"}),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "property_value",
			Help:      "Current value of numeric properties.",
		}, []string{"property", "unit"}),
		lastReading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_reading_timestamp_seconds",
			Help:      "Unix time of the last applied reading.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.readings, m.updates, m.failures, m.values, m.lastReading)
	}
	return m
}

// Observer returns a thing.Observer that records property updates.
func (m *Metrics) Observer() thing.Observer {
	return func(name string, v obis.Value) {
		m.updates.WithLabelValues(name).Inc()
		m.setValue(name, v)
	}
}

func (m *Metrics) setValue(name string, v obis.Value) {
	if n, ok := v.AsNumber(); ok {
		m.values.WithLabelValues(name, v.Unit()).Set(n)
	}
}

func (m *Metrics) readingApplied(at time.Time) {
	m.readings.Inc()
	m.lastReading.Set(float64(at.UnixNano()) / float64(time.Second))
}

func (m *Metrics) failure(reason string) {
	m.failures.WithLabelValues(reason).Inc()
}
