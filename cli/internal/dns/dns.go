package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// publicDNS are servers to be queried if a local lookup fails.
// These are well-known, high-availability public DNS providers
var publicDNS = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
	"208.67.220.220",         // Cisco OpenDNS
}

// Resolver looks hosts up through the system resolver and, when that fails,
// races a list of public DNS servers.
type Resolver struct {
	Servers       []string
	LocalTimeout  time.Duration
	RemoteTimeout time.Duration

	// lookup queries one server; an empty server means the system resolver.
	lookup func(ctx context.Context, host, server string) ([]string, error)
}

// NewResolver returns a Resolver using the built-in public server list.
func NewResolver() *Resolver {
	return &Resolver{
		Servers:       publicDNS,
		LocalTimeout:  time.Second,
		RemoteTimeout: 2 * time.Second,
		lookup:        lookupHost,
	}
}

// Lookup resolves host to one IP address, preferring IPv4. IP literals are
// returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	// 1. Try Local/System DNS first
	localCtx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	ips, err := r.lookup(localCtx, host, "")
	cancel()
	if err == nil {
		if ip, ok := pickIP(ips); ok {
			return ip, nil
		}
	}

	// 2. Fallback to public DNS
	return r.race(ctx, host)
}

// DialContext resolves addr's host with Lookup and dials the result. It fits
// websocket.Dialer.NetDialContext.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

// race returns the first answer from the public servers.
func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	if len(r.Servers) == 0 {
		return "", fmt.Errorf("failed to resolve %s: no fallback servers", host)
	}

	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.RemoteTimeout)
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func() {
			ips, err := r.lookup(ctx, host, server)
			if err != nil {
				results <- result{err: err}
				return
			}
			ip, ok := pickIP(ips)
			if !ok {
				results <- result{err: errors.New("no IPs returned")}
				return
			}
			results <- result{ip: ip}
		}()
	}

	// Wait for the first success or all failures
	failures := 0
	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("DNS lookup for %s timed out during public DNS race", host)
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, failures)
}

func pickIP(ips []string) (string, bool) {
	if len(ips) == 0 {
		return "", false
	}
	// Prefer IPv4
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, true
		}
	}
	return ips[0], true
}

func lookupHost(ctx context.Context, host, server string) ([]string, error) {
	r := &net.Resolver{}
	if server != "" {
		r = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				// Force port 53 for DNS
				return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
			},
		}
	}
	return r.LookupHost(ctx, host)
}
