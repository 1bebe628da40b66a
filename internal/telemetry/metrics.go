package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	// ---- Prober ----
	PingsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peerprobe",
			Name:      "pings_sent_total",
			Help:      "Total number of ping datagrams sent to unconfirmed peers.",
		},
	)

	PongsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peerprobe",
			Name:      "pongs_sent_total",
			Help:      "Total number of pong replies sent.",
		},
	)

	ProbeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peerprobe",
			Name:      "probe_errors_total",
			Help:      "Transient probe failures, by reason (resolve, send, reply).",
		},
		[]string{"reason"},
	)

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peerprobe",
			Name:      "messages_received_total",
			Help:      "Datagrams received, by kind (ping, pong, unknown).",
		},
		[]string{"kind"},
	)

	Peers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "peerprobe",
			Name:      "peers",
			Help:      "Number of peers in the peer set, self included.",
		},
	)

	ConfirmedPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "peerprobe",
			Name:      "confirmed_peers",
			Help:      "Number of peers that have answered a ping, self included.",
		},
	)

	Ready = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "peerprobe",
			Name:      "ready",
			Help:      "1 once every peer has been confirmed.",
		},
	)

	// ---- HTTP status endpoint ----
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peerprobe",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peerprobe",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			// 1ms .. ~4s.
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	// ---- Process / build info ----
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "peerprobe",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and git_sha).",
		},
		[]string{"version", "git_sha"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "peerprobe",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		PingsSent, PongsSent, ProbeErrors, MessagesReceived,
		Peers, ConfirmedPeers, Ready,
		RequestsTotal, RequestDuration, buildInfo, uptime,
	)
}

// MetricsHandler exposes /metrics. Mount it with mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup, e.g. with ldflags-provided values.
func SetBuildInfo(version, gitSHA string) {
	buildInfo.WithLabelValues(version, gitSHA).Set(1)
}

// ---- Middleware instrumentation ----

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op" label.
// Example:
//
//	mux.Handle("/info", telemetry.Instrument("info", http.HandlerFunc(s.Info)))
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
