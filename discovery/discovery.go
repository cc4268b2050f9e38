// Package discovery finds camera servers and relays on the local network over
// mDNS, and advertises the ones this binary runs.
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/RogersSccot/STI-Vision/session"
)

const (
	ServiceCamera = "_stivision._tcp"
	ServiceRelay  = "_stivision-relay._tcp"
	Domain        = "local."

	DefaultBrowseTimeout = 3 * time.Second
)

type Service struct {
	Instance string            `json:"instance"`
	HostName string            `json:"host_name"`
	Port     int               `json:"port"`
	Addrs    []string          `json:"addrs"`
	Text     map[string]string `json:"text,omitempty"`
}

// Endpoint prefers an IPv4 address, then IPv6, then the advertised host name.
func (s Service) Endpoint() session.Endpoint {
	host := strings.TrimSuffix(s.HostName, ".")
	for _, a := range s.Addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return session.Endpoint{Host: a, Port: s.Port}
		}
	}
	if len(s.Addrs) > 0 {
		host = s.Addrs[0]
	}
	return session.Endpoint{Host: host, Port: s.Port}
}

// Browse collects the instances of service seen before timeout expires.
func Browse(ctx context.Context, service string, timeout time.Duration) ([]Service, error) {
	if service == "" {
		service = ServiceCamera
	}
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, service, Domain, entries); err != nil {
		return nil, fmt.Errorf("discovery: browse %s: %w", service, err)
	}

	seen := make(map[string]Service)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return sortServices(seen), nil
			}
			svc := fromEntry(e)
			log.Printf("[discovery] found %s at %s", svc.Instance, svc.Endpoint())
			seen[svc.Instance] = svc
		case <-ctx.Done():
			return sortServices(seen), nil
		}
	}
}

func sortServices(m map[string]Service) []Service {
	out := make([]Service, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

func fromEntry(e *zeroconf.ServiceEntry) Service {
	s := Service{
		Instance: e.Instance,
		HostName: e.HostName,
		Port:     e.Port,
	}
	for _, ip := range e.AddrIPv4 {
		s.Addrs = append(s.Addrs, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		s.Addrs = append(s.Addrs, ip.String())
	}
	for _, kv := range e.Text {
		k, v, _ := strings.Cut(kv, "=")
		if k == "" {
			continue
		}
		if s.Text == nil {
			s.Text = make(map[string]string)
		}
		s.Text[k] = v
	}
	return s
}

// Advertisement keeps a registered service alive until Shutdown.
type Advertisement struct {
	server *zeroconf.Server
}

// Register advertises instance on port. txt entries are "key=value" pairs.
func Register(instance, service string, port int, txt ...string) (*Advertisement, error) {
	if service == "" {
		service = ServiceCamera
	}
	server, err := zeroconf.Register(instance, service, Domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register %s: %w", instance, err)
	}
	log.Printf("[discovery] advertising %s as %s on port %d", instance, service, port)
	return &Advertisement{server: server}, nil
}

func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}
