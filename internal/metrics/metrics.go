package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gateway"

var (
	registerOnce sync.Once

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "sessions_active",
			Help:      "Device sessions currently open.",
		},
	)
	sessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "sessions_total",
			Help:      "Device sessions accepted.",
		},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "frames_total",
			Help:      "Frames read from devices by decode result.",
		},
		[]string{"result"},
	)
	acksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "acks_total",
			Help:      "Acknowledgements written back to devices.",
		},
		[]string{"header", "success"},
	)
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "events_published_total",
			Help:      "Events handed to the broadcaster.",
		},
		[]string{"kind"},
	)
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "events_dropped_total",
			Help:      "Events evicted from a full subscriber queue.",
		},
		[]string{"subscriber"},
	)
	subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Subscribers currently attached.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionsActive,
			sessionsTotal,
			framesTotal,
			acksTotal,
			eventsPublished,
			eventsDropped,
			subscribers,
			httpRequests,
			httpDuration,
		)
	})
}

func SessionOpened() {
	Register()
	sessionsTotal.Inc()
	sessionsActive.Inc()
}

func SessionClosed() {
	Register()
	sessionsActive.Dec()
}

// RecordFrame counts one frame; result is "decoded" or "decode_error".
func RecordFrame(result string) {
	Register()
	framesTotal.WithLabelValues(result).Inc()
}

func RecordAck(header string, success bool) {
	Register()
	acksTotal.WithLabelValues(header, strconv.FormatBool(success)).Inc()
}

func RecordEventPublished(kind string) {
	Register()
	eventsPublished.WithLabelValues(kind).Inc()
}

func RecordEventDropped(subscriber string) {
	Register()
	eventsDropped.WithLabelValues(subscriber).Inc()
}

func SetSubscribers(n int) {
	Register()
	subscribers.Set(float64(n))
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	Register()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
