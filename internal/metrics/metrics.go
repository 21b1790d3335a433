// Package metrics provides Prometheus metrics for the chat backend and the
// unread synchronizer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Backend
	HTTPRequestsTotal     *prometheus.CounterVec
	UnreadEventsPublished *prometheus.CounterVec
	WebsocketClients      prometheus.Gauge

	// Synchronizer
	ProposalsTotal *prometheus.CounterVec
	PullsTotal     *prometheus.CounterVec
	Compensations  *prometheus.CounterVec
	VisibleTotal   prometheus.Gauge
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests
// to avoid clashing with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partshub_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		UnreadEventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partshub_unread_events_published_total",
				Help: "Unread events published to the realtime bus",
			},
			[]string{"status"},
		),
		WebsocketClients: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "partshub_websocket_clients",
				Help: "Currently connected websocket clients",
			},
		),
		ProposalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partshub_unread_proposals_total",
				Help: "Update proposals seen by the reconciler by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		PullsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partshub_unread_pulls_total",
				Help: "Unread summary pulls by outcome",
			},
			[]string{"outcome"},
		),
		Compensations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partshub_unread_compensations_total",
				Help: "Optimistic acknowledgement compensations by outcome",
			},
			[]string{"outcome"},
		),
		VisibleTotal: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "partshub_unread_visible_total",
				Help: "Unread total currently shown to the viewer",
			},
		),
	}
}

func (m *Metrics) ObserveHTTP(route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
}

func (m *Metrics) ObservePublish(ok bool) {
	if m == nil {
		return
	}
	m.UnreadEventsPublished.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.WebsocketClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.WebsocketClients.Dec()
}

func (m *Metrics) ObserveProposal(kind string, accepted bool) {
	if m == nil {
		return
	}
	o := "accepted"
	if !accepted {
		o = "rejected"
	}
	m.ProposalsTotal.WithLabelValues(kind, o).Inc()
}

func (m *Metrics) ObservePull(ok bool) {
	if m == nil {
		return
	}
	m.PullsTotal.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) ObserveCompensation(ok bool) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) SetVisibleTotal(total int) {
	if m == nil {
		return
	}
	m.VisibleTotal.Set(float64(total))
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
