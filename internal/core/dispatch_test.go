package core

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/user/compassh/internal/dns"
	"github.com/user/compassh/internal/routing"
)

const scenarioConfig = `
VPN:
  core:
    proxy: gw.example.com
    local_port: 1080
  corp:
    proxy: jump@inner.example.com
    local_port: 1081
    parent: core
patterns:
  "^internal\\.": corp
  "\\.example\\.com$": core
hosts:
  internal.db: 10.9.0.5
`

type relayCall struct {
	Kind  string
	SOCKS string
	Host  string
	Port  int
}

type fakeRelay struct {
	calls []relayCall
}

func (r *fakeRelay) Direct(_ context.Context, host string, port int) error {
	r.calls = append(r.calls, relayCall{Kind: "direct", Host: host, Port: port})
	return nil
}

func (r *fakeRelay) ViaSOCKS(_ context.Context, socksAddr, host string, port int) error {
	r.calls = append(r.calls, relayCall{Kind: "socks", SOCKS: socksAddr, Host: host, Port: port})
	return nil
}

func newDispatchFixture(t *testing.T) (*fixture, *fakeRelay, *Dispatcher) {
	t.Helper()
	f := newFixture(t, scenarioConfig)
	resolver := dns.NewResolver(f.cfg.Hosts).WithLookup(func(_ context.Context, host string) ([]netip.Addr, error) {
		if host == "internal.wiki" {
			return []netip.Addr{netip.MustParseAddr("10.1.2.3")}, nil
		}
		return nil, errors.New("no such host")
	})
	rl := &fakeRelay{}
	return f, rl, NewDispatcher(routing.NewMatcher(f.cfg), resolver, f.manager, rl)
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name      string
		host      string
		port      int
		wantCall  relayCall
		wantStart []string
	}{
		{
			name:     "no rule matches",
			host:     "github.com",
			wantCall: relayCall{Kind: "direct", Host: "github.com", Port: 22},
		},
		{
			name:      "child tunnel brings up its parent",
			host:      "internal.wiki",
			port:      2222,
			wantCall:  relayCall{Kind: "socks", SOCKS: "127.0.0.1:1081", Host: "10.1.2.3", Port: 2222},
			wantStart: []string{"core", "corp"},
		},
		{
			name:      "unresolvable host is passed through",
			host:      "build.example.com",
			wantCall:  relayCall{Kind: "socks", SOCKS: "127.0.0.1:1080", Host: "build.example.com", Port: 22},
			wantStart: []string{"core"},
		},
		{
			name:     "proxy endpoint is never tunneled",
			host:     "gw.example.com",
			wantCall: relayCall{Kind: "direct", Host: "gw.example.com", Port: 22},
		},
		{
			name:     "proxy endpoint with user part",
			host:     "inner.example.com",
			wantCall: relayCall{Kind: "direct", Host: "inner.example.com", Port: 22},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, rl, d := newDispatchFixture(t)
			if err := d.Dispatch(context.Background(), tt.host, tt.port); err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			if diff := cmp.Diff([]relayCall{tt.wantCall}, rl.calls); diff != "" {
				t.Errorf("relay calls mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantStart, f.launcher.startOrder()); diff != "" {
				t.Errorf("start order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlanUsesHostsOverride(t *testing.T) {
	_, _, d := newDispatchFixture(t)

	plan := d.Plan(context.Background(), "internal.db", 0)
	want := Plan{Address: "10.9.0.5", Port: DefaultPort, SOCKS: "127.0.0.1:1081"}
	if plan.Route.Tunnel.Name != "corp" {
		t.Errorf("routed to %q, want corp", plan.Route.Tunnel.Name)
	}
	plan.Route = routing.Route{}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchTunnelDown(t *testing.T) {
	f, rl, d := newDispatchFixture(t)
	f.launcher.behavior["core"] = exitsEarly

	err := d.Dispatch(context.Background(), "internal.wiki", 22)
	if !errors.Is(err, ErrParentDown) {
		t.Fatalf("error = %v, want ErrParentDown", err)
	}
	if len(rl.calls) != 0 {
		t.Errorf("relay used despite failed tunnel: %+v", rl.calls)
	}
	if diff := cmp.Diff([]string{"core"}, f.launcher.startOrder()); diff != "" {
		t.Errorf("start order mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchRunningTunnelNotRestarted(t *testing.T) {
	f, rl, d := newDispatchFixture(t)
	f.probe.bind(1080, 31)

	if err := d.Dispatch(context.Background(), "build.example.com", 22); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := f.launcher.startOrder(); len(got) != 0 {
		t.Errorf("launched %v for a running tunnel", got)
	}
	if len(rl.calls) != 1 || rl.calls[0].SOCKS != "127.0.0.1:1080" {
		t.Errorf("relay calls = %+v", rl.calls)
	}
}
