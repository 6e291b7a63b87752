package monitoring

import (
	"time"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Poll engine
	pollCycles        *prometheus.CounterVec
	pollCycleDuration prometheus.Histogram
	transitions       *prometheus.CounterVec
	channelsOnline    prometheus.Gauge

	// Credentials
	credentialRefreshes *prometheus.CounterVec

	// Notification hub
	clientsConnected prometheus.Gauge
	rejectedTotal    prometheus.Counter
	inboundMessages  *prometheus.CounterVec
}

// NewPrometheusCollector registers all metrics with reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		pollCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamwatch_poll_cycles_total",
			Help: "Poll cycles by result",
		}, []string{"result"}),

		pollCycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamwatch_poll_cycle_duration_seconds",
			Help:    "Duration of poll cycles including remote calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamwatch_transitions_total",
			Help: "Channel transitions emitted by kind",
		}, []string{"kind"}),

		channelsOnline: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamwatch_channels_online",
			Help: "Number of watched channels currently live",
		}),

		credentialRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamwatch_credential_refreshes_total",
			Help: "Credential refresh attempts by result",
		}, []string{"result"}),

		clientsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamwatch_ws_clients_connected",
			Help: "Number of registered WebSocket clients",
		}),

		rejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamwatch_ws_rejected_total",
			Help: "WebSocket connections rejected at handshake",
		}),

		inboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamwatch_ws_inbound_messages_total",
			Help: "Inbound WebSocket messages by type",
		}, []string{"type"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (p *PrometheusCollector) ObservePollCycle(duration time.Duration, err error) {
	p.pollCycles.WithLabelValues(result(err)).Inc()
	p.pollCycleDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordTransition(kind domain.TransitionKind) {
	p.transitions.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) SetChannelsOnline(n int) {
	p.channelsOnline.Set(float64(n))
}

func (p *PrometheusCollector) RecordCredentialRefresh(err error) {
	p.credentialRefreshes.WithLabelValues(result(err)).Inc()
}

func (p *PrometheusCollector) ClientConnected() {
	p.clientsConnected.Inc()
}

func (p *PrometheusCollector) ClientDisconnected() {
	p.clientsConnected.Dec()
}

func (p *PrometheusCollector) RecordRejectedConnection() {
	p.rejectedTotal.Inc()
}

func (p *PrometheusCollector) RecordInboundMessage(kind string) {
	p.inboundMessages.WithLabelValues(kind).Inc()
}

var _ ports.Metrics = (*PrometheusCollector)(nil)
