package surge

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the optional instrumentation surface for a server. It is
// additive: a nil *Metrics anywhere in this package is always a valid,
// inert no-op. Register it against a caller-supplied prometheus.Registerer
// so embedding applications control where (or whether) these are
// exposed.
type Metrics struct {
	SessionsOpened   prometheus.Counter
	SessionsClosed   prometheus.Counter
	AcceptErrors     prometheus.Counter
	PingFailures     prometheus.Counter
	ResponseQueueFull prometheus.Counter
	WriteListFull     prometheus.Counter
}

// NewMetrics constructs and registers a Metrics against reg. Pass
// prometheus.DefaultRegisterer to publish on the default /metrics path, or
// a fresh prometheus.NewRegistry() for isolated tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge", Name: "sessions_opened_total",
			Help: "WebSocket sessions opened.",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge", Name: "sessions_closed_total",
			Help: "WebSocket sessions closed.",
		}),
		AcceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge", Name: "accept_errors_total",
			Help: "Listener accept errors.",
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge", Name: "ping_failures_total",
			Help: "Liveness ping write failures.",
		}),
		ResponseQueueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge", Name: "response_queue_full_total",
			Help: "HTTP pipeline response queue back-pressure events.",
		}),
		WriteListFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge", Name: "write_list_full_total",
			Help: "WebSocket write list back-pressure events.",
		}),
	}
	reg.MustRegister(
		m.SessionsOpened, m.SessionsClosed, m.AcceptErrors,
		m.PingFailures, m.ResponseQueueFull, m.WriteListFull,
	)
	return m
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.SessionsOpened.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.SessionsClosed.Inc()
	}
}

func (m *Metrics) acceptError() {
	if m != nil {
		m.AcceptErrors.Inc()
	}
}

func (m *Metrics) pingFailure() {
	if m != nil {
		m.PingFailures.Inc()
	}
}

func (m *Metrics) responseQueueFull() {
	if m != nil {
		m.ResponseQueueFull.Inc()
	}
}

func (m *Metrics) writeListFull() {
	if m != nil {
		m.WriteListFull.Inc()
	}
}
