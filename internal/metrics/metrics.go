package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons used as the "reason" label of EventsDropped.
const (
	ReasonNilPayload   = "nil_payload"
	ReasonNoPosition   = "no_sender_position"
	ReasonEncode       = "encode_error"
	ReasonInactive     = "forwarder_inactive"
	ReasonHandlerPanic = "handler_panic"
)

var (
	DatagramsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_datagrams_sent_total",
		Help: "Total number of telemetry datagrams handed to the transport",
	}, []string{"kind"})

	SendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_send_errors_total",
		Help: "Total number of datagram sends that failed at the transport",
	})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_events_dropped_total",
		Help: "Total number of inbound events that produced no datagram",
	}, []string{"kind", "reason"})

	MirrorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_mirror_errors_total",
		Help: "Total number of records the mirror failed to publish",
	})

	ForwardersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_forwarders_active",
		Help: "Number of forwarders currently holding an open socket",
	})
)

// RecordSent counts one datagram of the given kind.
func RecordSent(kind string) {
	DatagramsSent.WithLabelValues(kind).Inc()
}

func RecordSendError() {
	SendErrors.Inc()
}

// RecordDropped counts an event that was logged and discarded.
func RecordDropped(kind, reason string) {
	EventsDropped.WithLabelValues(kind, reason).Inc()
}

func RecordMirrorError() {
	MirrorErrors.Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
