package link

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of a Session.
type Metrics struct {
	rxBytes         prometheus.Counter
	txBytes         prometheus.Counter
	frames          *prometheus.CounterVec
	connectAttempts prometheus.Counter
	disconnects     prometheus.Counter
	keepAlives      prometheus.Counter
	readErrors      prometheus.Counter
	writeErrors     prometheus.Counter
	state           prometheus.Gauge
}

// NewMetrics creates the session collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serialterm",
			Name:      "rx_bytes_total",
			Help:      "Bytes received from the device.",
		}),
		txBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serialterm",
			Name:      "tx_bytes_total",
			Help:      "Bytes sent to the device.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "serialterm",
			Name:      "frames_total",
			Help:      "Frames extracted from the receive stream, by kind.",
		}, []string{"kind"}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serialterm",
			Name:      "connect_attempts_total",
			Help:      "Attempts made to open the device.",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serialterm",
			Name:      "disconnects_total",
			Help:      "Completed teardowns of an open or failed link.",
		}),
		keepAlives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serialterm",
			Name:      "keepalives_total",
			Help:      "Keepalive bytes written to an idle link.",
		}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serialterm",
			Name:      "read_errors_total",
			Help:      "Transient transport read errors.",
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serialterm",
			Name:      "write_errors_total",
			Help:      "Failed sends.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "serialterm",
			Name:      "link_state",
			Help:      "Current link state (0 closed, 1 opening, 2 opened, 3 error).",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.rxBytes,
			m.txBytes,
			m.frames,
			m.connectAttempts,
			m.disconnects,
			m.keepAlives,
			m.readErrors,
			m.writeErrors,
			m.state,
		)
	}
	return m
}

func (m *Metrics) setState(s State) {
	m.state.Set(float64(s))
}
