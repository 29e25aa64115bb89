package config

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

var (
	ErrNotFound      = errors.New("configuration file not found")
	ErrUnknownTunnel = errors.New("no such VPN")
	ErrUnknownHost   = errors.New("no such host")
	ErrParentCycle   = errors.New("VPN parent chain contains a cycle")
)

// Validate validates the configuration and compiles the pattern rules.
// Tunnel names are filled in from the VPN table keys.
func (c *Config) Validate() error {
	switch c.RelayMode() {
	case RelayNetcat, RelayNative:
	default:
		return fmt.Errorf("unknown relay: %s", c.Relay)
	}
	if c.StartTimeout < 0 || c.PollInterval < 0 || c.DialTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	ports := make(map[int]string, len(c.Tunnels))
	for _, name := range c.TunnelNames() {
		t := c.Tunnels[name]
		t.Name = name
		c.Tunnels[name] = t

		if err := t.Validate(); err != nil {
			return fmt.Errorf("VPN %s: %w", name, err)
		}
		if other, ok := ports[t.LocalPort]; ok {
			return fmt.Errorf("VPN %s: local_port %d already used by VPN %s", name, t.LocalPort, other)
		}
		ports[t.LocalPort] = name

		if t.Parent != "" {
			if _, ok := c.Tunnels[t.Parent]; !ok {
				return fmt.Errorf("VPN %s: parent: %w: %s", name, ErrUnknownTunnel, t.Parent)
			}
		}
	}

	for _, name := range c.TunnelNames() {
		if _, err := c.ParentChain(name); err != nil {
			return err
		}
	}

	if err := c.Patterns.Validate(c.Tunnels); err != nil {
		return fmt.Errorf("patterns: %w", err)
	}

	for _, host := range c.HostNames() {
		if _, err := netip.ParseAddr(c.Hosts[host]); err != nil {
			return fmt.Errorf("hosts: invalid address for %s: %s", host, c.Hosts[host])
		}
	}

	return nil
}

// Validate validates a single tunnel definition.
func (t *Tunnel) Validate() error {
	if strings.TrimSpace(t.Proxy) == "" {
		return fmt.Errorf("proxy is required")
	}
	if t.LocalPort < 1 || t.LocalPort > 65535 {
		return fmt.Errorf("local_port must be between 1 and 65535")
	}
	if t.Parent == t.Name && t.Name != "" {
		return fmt.Errorf("%w: %s -> %s", ErrParentCycle, t.Name, t.Name)
	}
	return nil
}

// Validate compiles every rule and checks that its target tunnel exists.
func (p Patterns) Validate(tunnels map[string]Tunnel) error {
	for i := range p {
		re, err := regexp.Compile(p[i].Expr)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p[i].Expr, err)
		}
		if _, ok := tunnels[p[i].Tunnel]; !ok {
			return fmt.Errorf("pattern %q: %w: %s", p[i].Expr, ErrUnknownTunnel, p[i].Tunnel)
		}
		p[i].re = re
	}
	return nil
}

// ParentChain returns the start order for the named tunnel: the root
// ancestor first and the tunnel itself last. A chain that revisits a
// tunnel yields ErrParentCycle.
func (c *Config) ParentChain(name string) ([]string, error) {
	seen := make(map[string]bool)
	var chain []string
	for cur := name; cur != ""; {
		if seen[cur] {
			return nil, fmt.Errorf("%w: %s", ErrParentCycle, strings.Join(append(chain, cur), " -> "))
		}
		t, ok := c.Tunnels[cur]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTunnel, cur)
		}
		seen[cur] = true
		chain = append(chain, cur)
		cur = t.Parent
	}
	reverse(chain)
	return chain, nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
