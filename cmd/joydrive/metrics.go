package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"joydrive/internal/control"
	"joydrive/internal/input"
)

// metrics holds the daemon's collectors on a private registry.
type metrics struct {
	registry *prometheus.Registry

	inputEvents  *prometheus.CounterVec
	commands     *prometheus.CounterVec
	disconnects  prometheus.Counter
	reconnects   prometheus.Counter
	pollSeconds  prometheus.Histogram
	connected    prometheus.Gauge
	maxThrottle  prometheus.Gauge
	halted       prometheus.Gauge
	ipcRequests  *prometheus.CounterVec
	wsClients    prometheus.Gauge
	wsBroadcasts *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		inputEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "joydrive",
			Name:      "input_events_total",
			Help:      "Named input change events dispatched, by kind and source.",
		}, []string{"kind", "source"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "joydrive",
			Name:      "commands_total",
			Help:      "Commands emitted by trigger handlers.",
		}, []string{"command"}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "joydrive",
			Name:      "device_disconnects_total",
			Help:      "Controller disconnects observed by the poll loop.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "joydrive",
			Name:      "device_reconnects_total",
			Help:      "Successful reopen attempts after a disconnect.",
		}),
		pollSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "joydrive",
			Name:      "poll_duration_seconds",
			Help:      "Time spent in one tracker poll.",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "joydrive",
			Name:      "device_connected",
			Help:      "1 while a controller session is open.",
		}),
		maxThrottle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "joydrive",
			Name:      "max_throttle",
			Help:      "Current max throttle.",
		}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "joydrive",
			Name:      "halted",
			Help:      "1 once an emergency stop has latched.",
		}),
		ipcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "joydrive",
			Name:      "ipc_requests_total",
			Help:      "IPC requests by outcome.",
		}, []string{"status"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "joydrive",
			Name:      "ws_clients",
			Help:      "Connected state websocket clients.",
		}),
		wsBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "joydrive",
			Name:      "ws_broadcasts_total",
			Help:      "State websocket messages fanned out, by type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.inputEvents,
		m.commands,
		m.disconnects,
		m.reconnects,
		m.pollSeconds,
		m.connected,
		m.maxThrottle,
		m.halted,
		m.ipcRequests,
		m.wsClients,
		m.wsBroadcasts,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeEvents(events []input.Event, source string) {
	for _, ev := range events {
		switch ev.(type) {
		case input.AxisChanged:
			m.inputEvents.WithLabelValues(input.TypeAxisChanged, source).Inc()
		case input.ButtonChanged:
			m.inputEvents.WithLabelValues(input.TypeButtonChanged, source).Inc()
		}
	}
}

func (m *metrics) observeState(st control.State) {
	m.maxThrottle.Set(st.MaxThrottle)
	if st.Halted {
		m.halted.Set(1)
	} else {
		m.halted.Set(0)
	}
}

func (m *metrics) setConnected(ok bool) {
	if ok {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
