// Package telemetry is the optional, config-gated observability layer:
// Prometheus metrics and a structured audit log. Both are nil-safe so
// every call site can skip a nil check, following pkg/p2pnet's
// *AuditLogger pattern in the teacher repo.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors on an isolated
// registry, so they never collide with the process-wide default
// registry and so tests can build a fresh instance per case.
type Metrics struct {
	Registry *prometheus.Registry

	RegistrySize       *prometheus.GaugeVec
	PeerSessionState   prometheus.Gauge
	CheckAlertTotal    *prometheus.CounterVec
	CheckAlertDuration prometheus.Histogram
	WireErrorsTotal    *prometheus.CounterVec
	BuildInfo          *prometheus.GaugeVec
}

// NewMetrics creates a Metrics instance with all collectors registered.
func NewMetrics(version, commit string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		RegistrySize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentryfab_registry_occupied_slots",
			Help: "Number of registered sensor slots, by server role.",
		}, []string{"role"}),
		PeerSessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentryfab_peer_session_state",
			Help: "Current P2P session state machine value (0=DISCONNECTED .. 6=DISCONNECT_REQ_SENT).",
		}),
		CheckAlertTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentryfab_checkalert_total",
			Help: "CHECKALERT rendezvous attempts, by outcome.",
		}, []string{"outcome"}),
		CheckAlertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentryfab_checkalert_duration_seconds",
			Help:    "Latency of the CHECKALERT P2P round trip.",
			Buckets: prometheus.DefBuckets,
		}),
		WireErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentryfab_wire_errors_total",
			Help: "ERROR frames sent for REQ_CONNSEN duplicate-id (04) and sensor-limit (09) rejections and for CHECKALERT misses (10), by role and sub-code. Other ERROR frames are not counted.",
		}, []string{"role", "code"}),
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentryfab_build_info",
			Help: "Build metadata, value is always 1.",
		}, []string{"version", "commit"}),
	}

	reg.MustRegister(
		m.RegistrySize,
		m.PeerSessionState,
		m.CheckAlertTotal,
		m.CheckAlertDuration,
		m.WireErrorsTotal,
		m.BuildInfo,
	)
	m.BuildInfo.WithLabelValues(version, commit).Set(1)
	return m
}

// Handler returns the promhttp handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveRegistrySize records the current registered-slot count.
func (m *Metrics) ObserveRegistrySize(role string, n int) {
	if m == nil {
		return
	}
	m.RegistrySize.WithLabelValues(role).Set(float64(n))
}

// SetPeerState records the P2P session state machine's current value.
func (m *Metrics) SetPeerState(state int) {
	if m == nil {
		return
	}
	m.PeerSessionState.Set(float64(state))
}

// IncWireError records an ERROR frame sent to a requester.
func (m *Metrics) IncWireError(role, code string) {
	if m == nil {
		return
	}
	m.WireErrorsTotal.WithLabelValues(role, code).Inc()
}

// ObserveCheckAlert records one CHECKALERT rendezvous outcome and its
// wall-clock latency in seconds.
func (m *Metrics) ObserveCheckAlert(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.CheckAlertTotal.WithLabelValues(outcome).Inc()
	m.CheckAlertDuration.Observe(seconds)
}
