package signaling

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Queried directly when the system resolver cannot find the relay.
var publicDNS = []string{
	"1.1.1.1",         // Cloudflare
	"1.0.0.1",         // Cloudflare
	"8.8.8.8",         // Google
	"8.8.4.4",         // Google
	"9.9.9.9",         // Quad9
	"149.112.112.112", // Quad9
	"208.67.222.222",  // Cisco OpenDNS
	"2606:4700:4700::1111",
	"2001:4860:4860::8888",
}

const publicLookupTimeout = 2 * time.Second

type lookupFunc func(ctx context.Context, host, server string) ([]string, error)

// resolver looks a host up with the system resolver first and races the
// public servers if that fails. An empty server means the system resolver.
type resolver struct {
	servers []string
	lookup  lookupFunc
}

func newResolver() *resolver {
	return &resolver{servers: publicDNS, lookup: lookupHost}
}

func (r *resolver) Resolve(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	if ips, err := r.lookup(ctx, host, ""); err == nil {
		if ip, ok := preferIPv4(ips); ok {
			return ip, nil
		}
	}

	return r.race(ctx, host)
}

func (r *resolver) race(ctx context.Context, host string) (string, error) {
	if len(r.servers) == 0 {
		return "", fmt.Errorf("failed to resolve %s", host)
	}

	type result struct {
		ip string
		ok bool
	}

	ctx, cancel := context.WithTimeout(ctx, publicLookupTimeout)
	defer cancel()

	results := make(chan result, len(r.servers))
	for _, server := range r.servers {
		go func() {
			ips, err := r.lookup(ctx, host, server)
			if err != nil {
				results <- result{}
				return
			}
			ip, ok := preferIPv4(ips)
			results <- result{ip: ip, ok: ok}
		}()
	}

	for range r.servers {
		select {
		case res := <-results:
			if res.ok {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("failed to resolve %s: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, len(r.servers))
}

// DialContext resolves addr before dialing it, for use as the WebSocket
// dialer's NetDialContext.
func (r *resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.Resolve(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func lookupHost(ctx context.Context, host, server string) ([]string, error) {
	if server == "" {
		return net.DefaultResolver.LookupHost(ctx, host)
	}
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
	return r.LookupHost(ctx, host)
}

func preferIPv4(ips []string) (string, bool) {
	if len(ips) == 0 {
		return "", false
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, true
		}
	}
	return ips[0], true
}
