package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines the interface for metrics collection
type Collector interface {
	// Session socket metrics
	SessionConnected()
	SessionDisconnected()
	MessageReceived(messageType string, sizeBytes int)
	MessageSent(messageType string, sizeBytes int)
	MessageError(messageType, errorType string)

	// Perception metrics
	FrameProcessed()
	FrameThrottled()
	ProductDetected(productID string)

	// Store metrics
	Checkout(amount float64)
}

// PrometheusCollector implements the Collector interface using Prometheus
type PrometheusCollector struct {
	registry *prometheus.Registry

	activeSessions   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	messageErrors    *prometheus.CounterVec
	messageSize      *prometheus.HistogramVec

	framesProcessed  prometheus.Counter
	framesThrottled  prometheus.Counter
	productsDetected *prometheus.CounterVec

	checkouts       prometheus.Counter
	checkoutAmounts prometheus.Histogram
}

// NewPrometheusCollector creates a collector with its own registry
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,

		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "kiosksim_active_sessions",
			Help: "Number of connected kiosk sessions",
		}),

		sessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "kiosksim_session_connections_total",
			Help: "Total number of session socket connections",
		}),

		messagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosksim_messages_received_total",
			Help: "Total number of messages received from kiosks",
		}, []string{"message_type"}),

		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosksim_messages_sent_total",
			Help: "Total number of messages pushed to kiosks",
		}, []string{"message_type"}),

		messageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosksim_message_errors_total",
			Help: "Total number of inbound messages that could not be handled",
		}, []string{"message_type", "error_type"}),

		messageSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kiosksim_message_size_bytes",
			Help:    "Size of session socket messages",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		}, []string{"direction"}),

		framesProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "kiosksim_frames_processed_total",
			Help: "Frames that passed the per-session throttle",
		}),

		framesThrottled: f.NewCounter(prometheus.CounterOpts{
			Name: "kiosksim_frames_throttled_total",
			Help: "Frames dropped by the per-session throttle",
		}),

		productsDetected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosksim_products_detected_total",
			Help: "Products added to carts by detection",
		}, []string{"product_id"}),

		checkouts: f.NewCounter(prometheus.CounterOpts{
			Name: "kiosksim_checkouts_total",
			Help: "Completed checkouts",
		}),

		checkoutAmounts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kiosksim_checkout_amount",
			Help:    "Checkout totals",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
	}
}

// SessionConnected records a kiosk connection
func (c *PrometheusCollector) SessionConnected() {
	c.activeSessions.Inc()
	c.sessionsTotal.Inc()
}

// SessionDisconnected records a kiosk disconnection
func (c *PrometheusCollector) SessionDisconnected() {
	c.activeSessions.Dec()
}

// MessageReceived records an inbound socket message
func (c *PrometheusCollector) MessageReceived(messageType string, sizeBytes int) {
	c.messagesReceived.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues("in").Observe(float64(sizeBytes))
}

// MessageSent records an outbound socket message
func (c *PrometheusCollector) MessageSent(messageType string, sizeBytes int) {
	c.messagesSent.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues("out").Observe(float64(sizeBytes))
}

// MessageError records a socket message that could not be handled
func (c *PrometheusCollector) MessageError(messageType, errorType string) {
	c.messageErrors.WithLabelValues(messageType, errorType).Inc()
}

// FrameProcessed records a frame that reached the detector
func (c *PrometheusCollector) FrameProcessed() { c.framesProcessed.Inc() }
// FrameThrottled records a frame dropped by the rate limit
func (c *PrometheusCollector) FrameThrottled() { c.framesThrottled.Inc() }

// ProductDetected records a product added from a detection
func (c *PrometheusCollector) ProductDetected(productID string) {
	c.productsDetected.WithLabelValues(productID).Inc()
}

// Checkout records a completed checkout
func (c *PrometheusCollector) Checkout(amount float64) {
	c.checkouts.Inc()
	c.checkoutAmounts.Observe(amount)
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry so HTTP middleware can add its own series.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Nop discards every measurement.
type Nop struct{}

var _ Collector = Nop{}

func (Nop) SessionConnected() {}
func (Nop) SessionDisconnected() {}
func (Nop) MessageReceived(string, int) {}
func (Nop) MessageSent(string, int) {}
func (Nop) MessageError(string, string) {}
func (Nop) FrameProcessed() {}
func (Nop) FrameThrottled() {}
func (Nop) ProductDetected(string) {}
func (Nop) Checkout(float64) {}
