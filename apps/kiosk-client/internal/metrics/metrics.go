package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines the interface for metrics collection
type Collector interface {
	// Channel metrics
	ChannelState(state string)
	ConnectAttempt()
	ReconnectScheduled(attempt int)
	ReconnectExhausted()

	// Message metrics
	MessageSent(messageType string, sizeBytes int)
	MessageDropped(messageType string)
	MessageReceived(messageType string, sizeBytes int)
	DispatchError(messageType, errorType string)

	// Frame metrics
	FrameEmitted(sizeBytes int)
	FrameSkipped(reason string)
	OverlayRendered(boxes int)

	// Cart metrics
	CartApplied(items int)
	CartRemovalRejected()

	// Handler returns an HTTP handler for metrics endpoint
	Handler() http.Handler
}

var channelStates = []string{"disconnected", "connecting", "connected", "exhausted", "closed"}

// PrometheusCollector implements the Collector interface using Prometheus
type PrometheusCollector struct {
	registry *prometheus.Registry

	channelState       *prometheus.GaugeVec
	connectAttempts    prometheus.Counter
	reconnects         *prometheus.CounterVec
	reconnectExhausted prometheus.Counter

	messagesSent     *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	dispatchErrors   *prometheus.CounterVec
	messageSize      *prometheus.HistogramVec

	framesEmitted prometheus.Counter
	framesSkipped *prometheus.CounterVec
	frameSize     prometheus.Histogram
	overlayBoxes  prometheus.Histogram

	cartItems           prometheus.Gauge
	cartUpdates         prometheus.Counter
	cartRemovalRejected prometheus.Counter
}

// NewPrometheusCollector creates a collector backed by its own registry so
// several sessions (and tests) can coexist in one process.
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,

		channelState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kiosk_channel_state",
			Help: "1 for the current session channel state, 0 otherwise",
		}, []string{"state"}),

		connectAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_channel_connect_attempts_total",
			Help: "Total number of session channel dial attempts",
		}),

		reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_channel_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled, by attempt number",
		}, []string{"attempt"}),

		reconnectExhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_channel_reconnect_exhausted_total",
			Help: "Number of times the reconnect budget ran out",
		}),

		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_messages_sent_total",
			Help: "Total number of messages written to the session channel",
		}, []string{"message_type"}),

		messagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_messages_dropped_total",
			Help: "Outbound messages dropped because the channel was not connected",
		}, []string{"message_type"}),

		messagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_messages_received_total",
			Help: "Total number of messages read from the session channel",
		}, []string{"message_type"}),

		dispatchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_dispatch_errors_total",
			Help: "Inbound messages that failed to decode or whose handler failed",
		}, []string{"message_type", "error_type"}),

		messageSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kiosk_message_size_bytes",
			Help:    "Size of session channel messages in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		}, []string{"message_type", "direction"}),

		framesEmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_frames_emitted_total",
			Help: "Total number of frames sent to the backend",
		}),

		framesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_frames_skipped_total",
			Help: "Emitter ticks that did not send a frame",
		}, []string{"reason"}),

		frameSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kiosk_frame_size_bytes",
			Help:    "Encoded JPEG frame size",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 10),
		}),

		overlayBoxes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kiosk_overlay_boxes",
			Help:    "Boxes drawn per overlay render",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),

		cartItems: f.NewGauge(prometheus.GaugeOpts{
			Name: "kiosk_cart_items",
			Help: "Line items in the currently applied cart snapshot",
		}),

		cartUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_cart_updates_total",
			Help: "Cart snapshots applied",
		}),

		cartRemovalRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_cart_removals_rejected_total",
			Help: "Removal requests rejected locally for an out-of-range index",
		}),
	}
}

// ChannelState marks state as the current channel state
func (c *PrometheusCollector) ChannelState(state string) {
	for _, s := range channelStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.channelState.WithLabelValues(s).Set(v)
	}
}

// ConnectAttempt records a dial.
func (c *PrometheusCollector) ConnectAttempt() {
	c.connectAttempts.Inc()
}

// ReconnectScheduled records a scheduled retry.
func (c *PrometheusCollector) ReconnectScheduled(attempt int) {
	c.reconnects.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

// ReconnectExhausted records that the channel gave up.
func (c *PrometheusCollector) ReconnectExhausted() {
	c.reconnectExhausted.Inc()
}

// MessageSent records a sent message
func (c *PrometheusCollector) MessageSent(messageType string, sizeBytes int) {
	c.messagesSent.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues(messageType, "outbound").Observe(float64(sizeBytes))
}

// MessageDropped records an outbound message that was not sent.
func (c *PrometheusCollector) MessageDropped(messageType string) {
	c.messagesDropped.WithLabelValues(messageType).Inc()
}

// MessageReceived records a received message
func (c *PrometheusCollector) MessageReceived(messageType string, sizeBytes int) {
	c.messagesReceived.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues(messageType, "inbound").Observe(float64(sizeBytes))
}

// DispatchError records an inbound message that failed dispatch.
func (c *PrometheusCollector) DispatchError(messageType, errorType string) {
	c.dispatchErrors.WithLabelValues(messageType, errorType).Inc()
}

// FrameEmitted records an uploaded frame.
func (c *PrometheusCollector) FrameEmitted(sizeBytes int) {
	c.framesEmitted.Inc()
	c.frameSize.Observe(float64(sizeBytes))
}

// FrameSkipped records a tick that sent nothing.
func (c *PrometheusCollector) FrameSkipped(reason string) {
	c.framesSkipped.WithLabelValues(reason).Inc()
}

// OverlayRendered records an overlay render.
func (c *PrometheusCollector) OverlayRendered(boxes int) {
	c.overlayBoxes.Observe(float64(boxes))
}

// CartApplied records a server cart snapshot.
func (c *PrometheusCollector) CartApplied(items int) {
	c.cartUpdates.Inc()
	c.cartItems.Set(float64(items))
}

// CartRemovalRejected records a removal with a stale index.
func (c *PrometheusCollector) CartRemovalRejected() {
	c.cartRemovalRejected.Inc()
}

// Handler returns an HTTP handler for metrics endpoint
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}
