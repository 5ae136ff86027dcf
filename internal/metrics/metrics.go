package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// ModerationVerdicts counts gate outcomes: appropriate, inappropriate or fail_open.
	ModerationVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livecast_moderation_verdicts_total",
		Help: "Moderation gate verdicts by outcome",
	}, []string{"outcome"})
	ModerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "livecast_moderation_classifier_seconds",
		Help:    "Latency of classifier calls",
		Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
	})

	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livecast_webhook_events_total",
		Help: "Provider webhook events by type and reconciliation outcome",
	}, []string{"event", "outcome"})

	VODFallback = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livecast_vod_fallback_total",
		Help: "VOD capture fallback attempts by outcome",
	}, []string{"outcome"})

	ChatMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livecast_chat_messages_total",
		Help: "Persisted chat messages by visibility",
	}, []string{"visibility"})

	RealtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livecast_realtime_connections",
		Help: "Current number of realtime websocket connections",
	})
	RealtimeDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_realtime_dropped_total",
		Help: "Change events dropped because a client was too slow",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration,
		ModerationVerdicts, ModerationLatency,
		WebhookEvents, VODFallback, ChatMessages,
		RealtimeConnections, RealtimeDropped,
	)
}

// GinMiddleware records request count and latency per route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
