// Package config handles CompaSSH configuration loading, saving, and validation.
package config

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// RelayMode selects how connections are forwarded in proxy mode.
type RelayMode string

const (
	// RelayNetcat replaces the process with nc (the original behaviour).
	RelayNetcat RelayMode = "netcat"
	// RelayNative forwards stdin/stdout in-process.
	RelayNative RelayMode = "native"
)

// Config represents the main configuration structure.
type Config struct {
	Verbose      bool              `yaml:"verbose"`
	Relay        RelayMode         `yaml:"relay,omitempty"`
	StartTimeout int               `yaml:"start_timeout,omitempty"` // seconds
	PollInterval int               `yaml:"poll_interval,omitempty"` // milliseconds
	DialTimeout  int               `yaml:"dial_timeout,omitempty"`  // seconds
	LogFile      string            `yaml:"log_file,omitempty"`
	Bin          map[string]string `yaml:"bin,omitempty"`
	Tunnels      map[string]Tunnel `yaml:"VPN"`
	Patterns     Patterns          `yaml:"patterns"`
	Hosts        map[string]string `yaml:"hosts"`
}

// Tunnel is a named SSH dynamic forward bound to a fixed local port.
type Tunnel struct {
	Name      string `yaml:"-"`
	Proxy     string `yaml:"proxy"`
	LocalPort int    `yaml:"local_port"`
	Parent    string `yaml:"parent,omitempty"`
}

// PatternRule routes hostnames matching Expr to the named tunnel.
type PatternRule struct {
	Expr   string
	Tunnel string

	re *regexp.Regexp
}

// Regexp returns the compiled expression, or nil before compilation.
func (r PatternRule) Regexp() *regexp.Regexp {
	return r.re
}

// Patterns is the ordered list of pattern rules. In YAML it is a mapping
// whose key order is significant.
type Patterns []PatternRule

// UnmarshalYAML decodes a mapping node keeping declaration order.
func (p *Patterns) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*p = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: patterns must be a mapping of regexp to VPN name", value.Line)
	}

	rules := make(Patterns, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var expr, target string
		if err := value.Content[i].Decode(&expr); err != nil {
			return fmt.Errorf("line %d: pattern: %w", value.Content[i].Line, err)
		}
		if err := value.Content[i+1].Decode(&target); err != nil {
			return fmt.Errorf("line %d: pattern %q: %w", value.Content[i+1].Line, expr, err)
		}
		rules = append(rules, PatternRule{Expr: expr, Tunnel: target})
	}
	*p = rules
	return nil
}

// MarshalYAML encodes the rules back into an ordered mapping.
func (p Patterns) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, r := range p {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: r.Expr},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: r.Tunnel},
		)
	}
	return node, nil
}

// Tunnel returns the named tunnel.
func (c *Config) Tunnel(name string) (Tunnel, error) {
	t, ok := c.Tunnels[name]
	if !ok {
		return Tunnel{}, fmt.Errorf("%w: %s", ErrUnknownTunnel, name)
	}
	return t, nil
}

// TunnelNames returns all tunnel names in lexical order.
func (c *Config) TunnelNames() []string {
	names := make([]string, 0, len(c.Tunnels))
	for name := range c.Tunnels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HostNames returns the override table keys in lexical order.
func (c *Config) HostNames() []string {
	names := make([]string, 0, len(c.Hosts))
	for name := range c.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartTimeoutDuration returns the readiness poll cap.
func (c *Config) StartTimeoutDuration() time.Duration {
	if c.StartTimeout <= 0 {
		return DefaultStartTimeout
	}
	return time.Duration(c.StartTimeout) * time.Second
}

// PollIntervalDuration returns the delay between readiness probes.
func (c *Config) PollIntervalDuration() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.PollInterval) * time.Millisecond
}

// DialTimeoutDuration bounds direct dials and SOCKS handshakes.
func (c *Config) DialTimeoutDuration() time.Duration {
	if c.DialTimeout <= 0 {
		return DefaultDialTimeout
	}
	return time.Duration(c.DialTimeout) * time.Second
}

// RelayMode returns the configured relay, defaulting to netcat.
func (c *Config) RelayMode() RelayMode {
	if c.Relay == "" {
		return RelayNetcat
	}
	return c.Relay
}

const (
	DefaultStartTimeout = 10 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
	DefaultDialTimeout  = 5 * time.Second
)

// DefaultConfig returns an empty configuration with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Relay:        RelayNetcat,
		StartTimeout: int(DefaultStartTimeout / time.Second),
		PollInterval: int(DefaultPollInterval / time.Millisecond),
		DialTimeout:  int(DefaultDialTimeout / time.Second),
		Tunnels:      map[string]Tunnel{},
		Hosts:        map[string]string{},
	}
}
