package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace        = "neofs_vfs"
	storageSubsystem = "storage"

	methodLabelKey = "method"
)

// StorageMetrics collects statistics of the VFS storage.
type StorageMetrics struct {
	methodDuration   *prometheus.HistogramVec
	recordsAllocated prometheus.Gauge
	corruptionErrors prometheus.Counter
}

// NewStorageMetrics creates storage metrics and registers them in reg along
// with the version metric.
func NewStorageMetrics(reg prometheus.Registerer, version string) *StorageMetrics {
	m := &StorageMetrics{
		methodDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: storageSubsystem,
			Name:      "method_duration_seconds",
			Help:      "Storage method handling time",
		}, []string{methodLabelKey}),

		recordsAllocated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: storageSubsystem,
			Name:      "records_allocated",
			Help:      "Number of allocated file records",
		}),

		corruptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: storageSubsystem,
			Name:      "corruption_errors_total",
			Help:      "Number of detected storage corruptions",
		}),
	}

	reg.MustRegister(m.methodDuration, m.recordsAllocated, m.corruptionErrors)
	registerVersionMetric(reg, namespace, version)

	return m
}

// AddMethodDuration records the duration of the storage method call.
func (m *StorageMetrics) AddMethodDuration(method string, d time.Duration) {
	m.methodDuration.With(prometheus.Labels{methodLabelKey: method}).Observe(d.Seconds())
}

// SetRecordsAllocated updates the number of allocated records.
func (m *StorageMetrics) SetRecordsAllocated(n int32) {
	m.recordsAllocated.Set(float64(n))
}

// IncCorruptionErrors counts one more detected corruption.
func (m *StorageMetrics) IncCorruptionErrors() {
	m.corruptionErrors.Inc()
}
