package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestFromEntry(t *testing.T) {
	e := zeroconf.NewServiceEntry("nanopiduo2", ServiceCamera, Domain)
	e.HostName = "nanopiduo2.local."
	e.Port = 6756
	e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	e.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	e.Text = []string{"role=camera", "res=1920x1080", "=ignored", "flag"}

	s := fromEntry(e)
	if s.Instance != "nanopiduo2" || s.Port != 6756 {
		t.Errorf("service = %+v", s)
	}
	if len(s.Addrs) != 2 || s.Addrs[0] != "192.168.1.20" {
		t.Errorf("addrs = %v", s.Addrs)
	}
	if s.Text["role"] != "camera" || s.Text["res"] != "1920x1080" {
		t.Errorf("text = %v", s.Text)
	}
	if v, ok := s.Text["flag"]; !ok || v != "" {
		t.Errorf("bare key not kept: %v", s.Text)
	}
	if len(s.Text) != 3 {
		t.Errorf("text has %d keys, want 3", len(s.Text))
	}
}

func TestServiceEndpoint(t *testing.T) {
	tests := []struct {
		name string
		svc  Service
		want string
	}{
		{
			name: "ipv4 preferred",
			svc:  Service{HostName: "cam.local.", Port: 6756, Addrs: []string{"fe80::1", "10.0.0.5"}},
			want: "10.0.0.5:6756",
		},
		{
			name: "ipv6 only",
			svc:  Service{HostName: "cam.local.", Port: 6756, Addrs: []string{"fe80::1"}},
			want: "[fe80::1]:6756",
		},
		{
			name: "host name fallback",
			svc:  Service{HostName: "cam.local.", Port: 2000},
			want: "cam.local:2000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.svc.Endpoint().String(); got != tt.want {
				t.Errorf("Endpoint() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSortServices(t *testing.T) {
	got := sortServices(map[string]Service{
		"b": {Instance: "b"},
		"a": {Instance: "a"},
	})
	if len(got) != 2 || got[0].Instance != "a" || got[1].Instance != "b" {
		t.Errorf("sortServices = %+v", got)
	}
}
