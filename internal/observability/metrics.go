package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hl7gate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hl7gate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	mllpConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hl7gate",
			Subsystem: "mllp",
			Name:      "connections_total",
			Help:      "Connections accepted on the MLLP listener.",
		},
	)
	mllpMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hl7gate",
			Subsystem: "mllp",
			Name:      "messages_total",
			Help:      "Connections handled by workers, by outcome.",
		},
		[]string{"outcome"},
	)
	uploadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hl7gate",
			Subsystem: "storage",
			Name:      "upload_duration_seconds",
			Help:      "Payload upload duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "success"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hl7gate",
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Connections waiting for a worker.",
		},
	)
	workersBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hl7gate",
			Subsystem: "dispatch",
			Name:      "workers_busy",
			Help:      "Workers currently owning a connection.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			mllpConnections,
			mllpMessages,
			uploadDuration,
			queueDepth,
			workersBusy,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordConnectionAccepted() {
	RegisterMetrics()
	mllpConnections.Inc()
}

func RecordMessageOutcome(outcome string) {
	RegisterMetrics()
	mllpMessages.WithLabelValues(outcome).Inc()
}

func RecordUpload(backend string, duration time.Duration, success bool) {
	RegisterMetrics()
	uploadDuration.WithLabelValues(backend, strconv.FormatBool(success)).Observe(duration.Seconds())
}

func SetQueueDepth(n int) {
	RegisterMetrics()
	queueDepth.Set(float64(n))
}

func AddWorkersBusy(delta int) {
	RegisterMetrics()
	workersBusy.Add(float64(delta))
}
