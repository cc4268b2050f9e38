package relay

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/RogersSccot/STI-Vision/metrics"
)

func readExactly(t *testing.T, r io.Reader, n int) string {
	t.Helper()
	if c, ok := r.(net.Conn); ok {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(buf)
}

func TestServeForwardsBothDirections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, device := net.Pipe()
	defer device.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Serve(ctx, ln, host) }()

	for i, msg := range []string{"first client", "second client"} {
		client, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}

		if _, err := client.Write([]byte(msg)); err != nil {
			t.Fatalf("client write: %v", err)
		}
		if got := readExactly(t, device, len(msg)); got != msg {
			t.Errorf("serial got %q, want %q", got, msg)
		}

		reply := "ack" + msg
		if _, err := device.Write([]byte(reply)); err != nil {
			t.Fatalf("device write: %v", err)
		}
		if got := readExactly(t, client, len(reply)); got != reply {
			t.Errorf("client got %q, want %q", got, reply)
		}
		client.Close()
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeKeepsOrder(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, device := net.Pipe()
	defer device.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Serve(ctx, ln, host, WithBufferSize(4))

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	want := "0123456789abcdefghijklmnopqrstuvwxyz"
	go client.Write([]byte(want))
	if got := readExactly(t, device, len(want)); got != want {
		t.Errorf("serial got %q, want %q", got, want)
	}
}

func TestServeStopsWhenSerialCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, device := net.Pipe()

	errc := make(chan error, 1)
	go func() { errc <- Serve(context.Background(), ln, host) }()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	device.Close()
	select {
	case err := <-errc:
		if err != ErrSerialClosed {
			t.Errorf("Serve = %v, want ErrSerialClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after serial close")
	}
}

func TestDialEndsWhenPeerCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	host, device := net.Pipe()
	defer device.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))

	errc := make(chan error, 1)
	go func() { errc <- Dial(context.Background(), ln.Addr().String(), host, WithMetrics(m)) }()

	peer, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := device.Write([]byte("ping")); err != nil {
		t.Fatalf("device write: %v", err)
	}
	if got := readExactly(t, peer, 4); got != "ping" {
		t.Errorf("peer got %q", got)
	}
	if _, err := peer.Write([]byte("pong")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	if got := readExactly(t, device, 4); got != "pong" {
		t.Errorf("serial got %q", got)
	}
	peer.Close()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Dial = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dial did not return after peer close")
	}

	want := `
# HELP stivision_relay_bytes_total Bytes forwarded by the serial relay
# TYPE stivision_relay_bytes_total counter
stivision_relay_bytes_total{direction="serial_to_tcp"} 4
stivision_relay_bytes_total{direction="tcp_to_serial"} 4
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "stivision_relay_bytes_total"); err != nil {
		t.Error(err)
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	host, device := net.Pipe()
	defer host.Close()
	defer device.Close()
	if err := Dial(context.Background(), addr, host, WithDialTimeout(time.Second)); err == nil {
		t.Fatal("Dial to a closed port succeeded")
	}
}
