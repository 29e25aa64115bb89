package core

import (
	"context"
	"fmt"

	"github.com/user/compassh/internal/logger"
	"github.com/user/compassh/internal/relay"
	"github.com/user/compassh/internal/routing"
)

// DefaultPort is the destination port when proxy mode is given none.
const DefaultPort = 22

// Router picks the route for a host.
type Router interface {
	Match(host string) routing.Route
}

// Resolver maps a hostname to the address handed to a tunnel. It never
// fails: an unresolvable name is returned unchanged.
type Resolver interface {
	Resolve(ctx context.Context, host string) string
}

// Starter brings a tunnel up on demand.
type Starter interface {
	EnsureRunning(ctx context.Context, name string) (Result, error)
}

// Dispatcher implements proxy mode: one destination, one connection.
type Dispatcher struct {
	router   Router
	resolver Resolver
	starter  Starter
	relay    relay.Relay
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(router Router, resolver Resolver, starter Starter, rl relay.Relay) *Dispatcher {
	return &Dispatcher{
		router:   router,
		resolver: resolver,
		starter:  starter,
		relay:    rl,
	}
}

// Plan is the routing decision for one destination, computed without
// touching any tunnel.
type Plan struct {
	Route   routing.Route
	Address string // what the relay connects to
	Port    int
	SOCKS   string // local SOCKS endpoint, empty for direct routes
}

// Plan routes host and, for tunneled routes, resolves it.
func (d *Dispatcher) Plan(ctx context.Context, host string, port int) Plan {
	if port == 0 {
		port = DefaultPort
	}
	route := d.router.Match(host)
	if !route.Matched() {
		return Plan{Route: route, Address: host, Port: port}
	}
	return Plan{
		Route:   route,
		Address: d.resolver.Resolve(ctx, host),
		Port:    port,
		SOCKS:   relay.SOCKSAddr(route.Tunnel.LocalPort),
	}
}

// Dispatch connects the caller's stdio to host:port, starting the routed
// tunnel first when one is needed. With the netcat relay a successful call
// does not return.
func (d *Dispatcher) Dispatch(ctx context.Context, host string, port int) error {
	plan := d.Plan(ctx, host, port)
	if !plan.Route.Matched() {
		logger.Debug("Connecting directly to %s:%d", plan.Address, plan.Port)
		return d.relay.Direct(ctx, plan.Address, plan.Port)
	}

	name := plan.Route.Tunnel.Name
	if _, err := d.starter.EnsureRunning(ctx, name); err != nil {
		return fmt.Errorf("cannot reach %s through VPN %s: %w", host, name, err)
	}
	logger.Debug("Connecting to %s:%d (%s) via VPN %s at %s", host, plan.Port, plan.Address, name, plan.SOCKS)
	return d.relay.ViaSOCKS(ctx, plan.SOCKS, plan.Address, plan.Port)
}
