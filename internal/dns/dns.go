// Package dns resolves signaling hosts, falling back to public resolvers when
// the system resolver is broken (captive portals, stale VPN configs).
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Well-known public resolvers queried when the system lookup fails.
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

// Resolver looks hosts up locally first, then races the fallback servers.
type Resolver struct {
	// Fallback servers, host or [v6] form; port 53 is implied.
	Fallback []string

	LocalTimeout time.Duration
	RaceTimeout  time.Duration

	// lookup is swapped in tests.
	lookup func(ctx context.Context, r *net.Resolver, host string) ([]string, error)
}

// NewResolver returns a Resolver over the public fallback list.
func NewResolver() *Resolver {
	return &Resolver{
		Fallback:     publicDNS,
		LocalTimeout: time.Second,
		RaceTimeout:  2 * time.Second,
	}
}

// Lookup resolves host to a single address, preferring IPv4. IP literals are
// returned as is.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	ip, err := r.lookupWith(localCtx, &net.Resolver{}, host)
	cancel()
	if err == nil {
		return ip, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return r.race(ctx, host)
}

// DialContext resolves addr's host through Lookup and dials the result. It
// fits websocket.Dialer.NetDialContext.
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

func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	if len(r.Fallback) == 0 {
		return "", fmt.Errorf("failed to resolve %s: no fallback servers", host)
	}

	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.RaceTimeout)
	defer cancel()

	results := make(chan result, len(r.Fallback))
	for _, server := range r.Fallback {
		go func() {
			ip, err := r.lookupWith(ctx, viaServer(server), host)
			results <- result{ip: ip, err: err}
		}()
	}

	failures := 0
	for range r.Fallback {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("dns lookup timed out during public DNS race")
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, failures)
}

func (r *Resolver) lookupWith(ctx context.Context, res *net.Resolver, host string) (string, error) {
	lookup := r.lookup
	if lookup == nil {
		lookup = func(ctx context.Context, res *net.Resolver, host string) ([]string, error) {
			return res.LookupHost(ctx, host)
		}
	}

	ips, err := lookup(ctx, res, host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", errors.New("no IP addresses found")
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}

// viaServer builds a resolver that only talks to server.
func viaServer(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(trimBrackets(server), "53"))
		},
	}
}

func trimBrackets(s string) string {
	if len(s) > 2 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}
