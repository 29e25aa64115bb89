// Package dns resolves destination hosts before they are handed to a tunnel.
package dns

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/user/compassh/internal/logger"
)

// LookupFunc performs system name resolution.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// DefaultLookupTimeout bounds a single system lookup.
const DefaultLookupTimeout = 5 * time.Second

// Resolver maps hostnames to addresses: the override table first, then the
// system resolver, then the host itself.
type Resolver struct {
	overrides map[string]string
	lookup    LookupFunc
	timeout   time.Duration
}

// NewResolver creates a resolver backed by net.DefaultResolver.
func NewResolver(overrides map[string]string) *Resolver {
	return &Resolver{
		overrides: overrides,
		lookup:    systemLookup,
		timeout:   DefaultLookupTimeout,
	}
}

// WithLookup replaces the system lookup.
func (r *Resolver) WithLookup(fn LookupFunc) *Resolver {
	r.lookup = fn
	return r
}

// Override returns the configured address for host, if any.
func (r *Resolver) Override(host string) (string, bool) {
	addr, ok := r.overrides[host]
	return addr, ok
}

// Resolve never fails: when no override exists and system resolution does
// not produce an address, host is returned unchanged because it may still be
// routable from the far end of the tunnel.
func (r *Resolver) Resolve(ctx context.Context, host string) string {
	if addr, ok := r.overrides[host]; ok {
		logger.Debug("%s resolved to %s from hosts table", host, addr)
		return addr
	}

	if _, err := netip.ParseAddr(host); err == nil {
		return host
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addrs, err := r.lookup(ctx, host)
	if err != nil || len(addrs) == 0 {
		logger.Debug("Unable to resolve %s locally (%v), using it verbatim", host, err)
		return host
	}

	addr := preferIPv4(addrs)
	logger.Debug("%s resolved to %s", host, addr)
	return addr.String()
}

func systemLookup(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

func preferIPv4(addrs []netip.Addr) netip.Addr {
	for _, a := range addrs {
		if a.Unmap().Is4() {
			return a.Unmap()
		}
	}
	return addrs[0]
}
