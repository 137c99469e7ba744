// Package metrics holds the Prometheus collectors exported by echobot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used with RelayDrops.
const (
	DropNotAllowed = "not_allowed"
	DropTooShort   = "too_short"
	DropEmpty      = "empty"
)

var MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "echobot_messages_received_total",
	Help: "Inbound messages handed to the relay",
})

var RedirectsMatched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "echobot_redirects_matched_total",
	Help: "Redirects whose sources matched an inbound message",
})

var RelayDrops = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "echobot_relay_drops_total",
	Help: "Messages dropped for a redirect by its filters",
}, []string{"reason"})

// Dispatches counts per-destination outcomes; result is "ok" or a dispatch
// failure reason.
var Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "echobot_dispatch_total",
	Help: "Per-destination dispatch outcomes",
}, []string{"result"})

var DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "echobot_dispatch_latency_seconds",
	Help:    "Time to deliver header and body to one destination",
	Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
})

var Reconnects = promauto.NewCounter(prometheus.CounterOpts{
	Name: "echobot_reconnects_total",
	Help: "Platform sessions replaced after a transport error",
})

var SessionUp = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "echobot_session_up",
	Help: "1 while a platform session is ready",
})
