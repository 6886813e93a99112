package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters of one engine instance. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	linesReceived prometheus.Counter
	linesUnparsed prometheus.Counter
	linesSent     prometheus.Counter
	bytesSent     prometheus.Counter
	sendFailures  prometheus.Counter
	queueDepth    prometheus.Gauge
	connected     prometheus.Gauge
	rooms         prometheus.Gauge
	handles       *prometheus.GaugeVec
}

// New creates the collectors and registers them with r
func New(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		linesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ircengine_lines_received_total",
			Help: "Lines received from the server",
		}),
		linesUnparsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ircengine_lines_unparsed_total",
			Help: "Received lines that matched no known message format",
		}),
		linesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ircengine_writes_total",
			Help: "Writes made to the transport",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ircengine_sent_bytes_total",
			Help: "Bytes written to the transport",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ircengine_send_failures_total",
			Help: "Failed writes to the transport",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ircengine_queue_depth",
			Help: "Messages waiting in the output queue",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ircengine_connected",
			Help: "Whether the connection is registered with the server",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ircengine_rooms",
			Help: "Rooms currently tracked",
		}),
		handles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ircengine_handles",
			Help: "Live handles per namespace",
		}, []string{"namespace"}),
	}

	collectors := []prometheus.Collector{
		m.linesReceived, m.linesUnparsed, m.linesSent, m.bytesSent,
		m.sendFailures, m.queueDepth, m.connected, m.rooms, m.handles,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) LineReceived() {
	if m != nil {
		m.linesReceived.Inc()
	}
}

func (m *Metrics) LineUnparsed() {
	if m != nil {
		m.linesUnparsed.Inc()
	}
}

func (m *Metrics) LineSent(n int) {
	if m != nil {
		m.linesSent.Inc()
		m.bytesSent.Add(float64(n))
	}
}

func (m *Metrics) SendFailed() {
	if m != nil {
		m.sendFailures.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

func (m *Metrics) SetHandles(namespace string, n int) {
	if m != nil {
		m.handles.WithLabelValues(namespace).Set(float64(n))
	}
}
