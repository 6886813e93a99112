package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.LineReceived()
	m.LineUnparsed()
	m.LineSent(10)
	m.SendFailed()
	m.SetQueueDepth(3)
	m.SetConnected(true)
	m.SetRooms(2)
	m.SetHandles("contact", 4)
}

func TestRegisterAndGather(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.LineReceived()
	m.LineReceived()
	m.LineSent(12)
	m.SetQueueDepth(5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	values := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	if values["ircengine_lines_received_total"] != 2 {
		t.Errorf("lines received = %v", values["ircengine_lines_received_total"])
	}
	if values["ircengine_sent_bytes_total"] != 12 {
		t.Errorf("bytes sent = %v", values["ircengine_sent_bytes_total"])
	}
	if values["ircengine_queue_depth"] != 5 {
		t.Errorf("queue depth = %v", values["ircengine_queue_depth"])
	}

	if _, err := New(reg); err == nil {
		t.Error("registering twice should fail")
	}
}
