// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation. Metrics() measures request
// counts, latencies, in-flight concurrency, and response sizes with bounded
// label cardinality (method, registered route path, numeric status). A small
// set of domain counters tracks conversation and message throughput; they
// are incremented by handlers via the helper functions below.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpReqs counts requests by method, route path, and status code.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLat records request duration in seconds by method and route path.
	// Status is omitted to keep histogram cardinality lower.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpInflight gauges the number of in-flight requests.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// httpRespSize captures response sizes in bytes, tuned for JSON payloads.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 2 << 10, 5 << 10,
				10 << 10, 25 << 10, 50 << 10,
				100 << 10, 250 << 10, 500 << 10,
				1 << 20, 2 << 20, 5 << 20,
			},
		},
		[]string{"method", "path"},
	)

	// conversationsStarted counts conversation creations by outcome
	// ("created" or "degraded" when the store refused).
	conversationsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_conversations_started_total",
			Help: "Conversation creation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// messagesSent counts persisted messages by sender type.
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_messages_sent_total",
			Help: "Messages persisted, by sender type.",
		},
		[]string{"sender_type"},
	)

	// streamSubscribers gauges currently open live-transcript streams.
	streamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_stream_subscribers",
			Help: "Currently open live message streams.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpReqs, httpLat, httpInflight, httpRespSize,
		conversationsStarted, messagesSent, streamSubscribers,
	)
}

// IncConversationStarted records a conversation creation attempt.
func IncConversationStarted(outcome string) { conversationsStarted.WithLabelValues(outcome).Inc() }

// IncMessageSent records a persisted message.
func IncMessageSent(senderType string) { messagesSent.WithLabelValues(senderType).Inc() }

// StreamOpened / StreamClosed track live stream lifecycle.
func StreamOpened() { streamSubscribers.Inc() }
func StreamClosed() { streamSubscribers.Dec() }

// Metrics returns a Gin middleware that instruments requests with Prometheus.
// The "path" label uses the registered route (c.FullPath()) to avoid
// unbounded cardinality from raw URLs, falling back to the URL path on 404s.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		dur := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())
		size := c.Writer.Size() // -1 when unknown (e.g., hijacked streams)

		httpReqs.WithLabelValues(method, path, status).Inc()
		httpLat.WithLabelValues(method, path).Observe(dur)
		if size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
