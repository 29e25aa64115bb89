// Package routing decides which tunnel, if any, carries a destination host.
package routing

import (
	"strings"

	"github.com/user/compassh/internal/config"
	"github.com/user/compassh/internal/logger"
)

// Outcome classifies a routing decision.
type Outcome int

const (
	// Direct means no rule matched; connect without a tunnel.
	Direct Outcome = iota
	// Tunneled means a rule matched and Route.Tunnel carries the traffic.
	Tunneled
	// LoopGuard means the host is itself a tunnel proxy endpoint and is
	// connected directly so a tunnel never routes into itself.
	LoopGuard
)

func (o Outcome) String() string {
	switch o {
	case Direct:
		return "direct"
	case Tunneled:
		return "tunneled"
	case LoopGuard:
		return "loop-guard"
	default:
		return "unknown"
	}
}

// Route is the result of matching a host.
type Route struct {
	Host    string
	Outcome Outcome
	Tunnel  config.Tunnel // set when Outcome is Tunneled
	Pattern string        // the matching expression
	Proxy   string        // for LoopGuard: the tunnel whose endpoint equals Host
}

// Matched reports whether the route goes through a tunnel.
func (r Route) Matched() bool {
	return r.Outcome == Tunneled
}

// Matcher maps hostnames to tunnels using ordered pattern rules.
type Matcher struct {
	cfg *config.Config
}

// NewMatcher creates a matcher over a validated configuration.
func NewMatcher(cfg *config.Config) *Matcher {
	return &Matcher{cfg: cfg}
}

// Match returns the route for host. Rules are tried in declaration order
// and the first match wins. Matching is unanchored unless the expression
// anchors itself.
func (m *Matcher) Match(host string) Route {
	if name, ok := m.proxyOwner(host); ok {
		logger.Warning("%s is the proxy endpoint of VPN %s; connecting directly", host, name)
		return Route{Host: host, Outcome: LoopGuard, Proxy: name}
	}

	for _, rule := range m.cfg.Patterns {
		re := rule.Regexp()
		if re == nil || !re.MatchString(host) {
			continue
		}
		t, err := m.cfg.Tunnel(rule.Tunnel)
		if err != nil {
			// Validation guarantees targets exist.
			logger.Error("pattern %q: %v", rule.Expr, err)
			continue
		}
		logger.Debug("%s matched pattern %q, using VPN %s", host, rule.Expr, t.Name)
		return Route{Host: host, Outcome: Tunneled, Tunnel: t, Pattern: rule.Expr}
	}

	logger.Debug("%s matched no pattern, connecting directly", host)
	return Route{Host: host, Outcome: Direct}
}

// proxyOwner returns the tunnel whose proxy endpoint is host. A proxy given
// as user@host also matches the bare host.
func (m *Matcher) proxyOwner(host string) (string, bool) {
	for _, name := range m.cfg.TunnelNames() {
		proxy := m.cfg.Tunnels[name].Proxy
		if strings.EqualFold(proxy, host) {
			return name, true
		}
		if i := strings.LastIndex(proxy, "@"); i >= 0 && strings.EqualFold(proxy[i+1:], host) {
			return name, true
		}
	}
	return "", false
}
