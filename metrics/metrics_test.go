package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithNamespace("test"))

	c.FrameReceived(100)
	c.FrameReceived(50)
	c.FrameSkipped(SkipLength)
	c.FrameSkipped(SkipDecode)
	c.FrameSkipped(SkipDecode)
	c.SetRates(29.5, 1.25)
	c.SetState(3)
	c.RelayBytes(DirectionToSerial, 10)
	c.RelayBytes(DirectionToSerial, 0)
	c.RelayClient(1)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"frames", testutil.ToFloat64(c.framesTotal), 2},
		{"bytes", testutil.ToFloat64(c.bytesTotal), 150},
		{"skipped length", testutil.ToFloat64(c.framesSkipped.WithLabelValues(SkipLength)), 1},
		{"skipped decode", testutil.ToFloat64(c.framesSkipped.WithLabelValues(SkipDecode)), 2},
		{"fps", testutil.ToFloat64(c.fps), 29.5},
		{"mbit", testutil.ToFloat64(c.throughputMbit), 1.25},
		{"state", testutil.ToFloat64(c.sessionState), 3},
		{"relay bytes", testutil.ToFloat64(c.relayBytes.WithLabelValues(DirectionToSerial)), 10},
		{"relay clients", testutil.ToFloat64(c.relayClients), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.FrameReceived(1)
	c.FrameSkipped(SkipDecode)
	c.SetRates(1, 1)
	c.SetState(1)
	c.Reconnect()
	c.RelayBytes(DirectionToTCP, 1)
	c.RelayClient(1)
}
