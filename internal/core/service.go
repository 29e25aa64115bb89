// Package core provides the tunnel lifecycle and proxy-mode dispatch.
//
// Nothing here remembers tunnel state. Every decision is re-derived from the
// OS socket table, which is the only registry shared by concurrent
// invocations.
package core

import (
	"fmt"
	"os"

	"github.com/user/compassh/internal/config"
	"github.com/user/compassh/internal/connmon"
	"github.com/user/compassh/internal/dns"
	"github.com/user/compassh/internal/logger"
	"github.com/user/compassh/internal/procutil"
	"github.com/user/compassh/internal/protocols/ssh"
	"github.com/user/compassh/internal/relay"
	"github.com/user/compassh/internal/routing"
)

// Service wires the components for one invocation.
type Service struct {
	Config     *config.Config
	Tools      procutil.Tools
	Manager    *Manager
	Dispatcher *Dispatcher
	Matcher    *routing.Matcher
	Resolver   *dns.Resolver
}

// Environment carries the process-level inputs of a Service.
type Environment struct {
	// Home locates per-tunnel SSH profiles. Defaults to the user's home.
	Home string
}

// RequiredTools lists the external commands cfg needs.
func RequiredTools(cfg *config.Config) []string {
	tools := []string{"ssh"}
	if connmon.ListenTool != "" {
		tools = append(tools, connmon.ListenTool)
	}
	if cfg.RelayMode() == config.RelayNetcat {
		tools = append(tools, "nc")
	}
	return tools
}

// NewService resolves external tools once and builds every component.
// A missing tool is fatal: the error wraps procutil.ErrToolNotFound.
func NewService(cfg *config.Config, env Environment) (*Service, error) {
	tools, err := procutil.ResolveTools(cfg.Bin, RequiredTools(cfg)...)
	if err != nil {
		return nil, err
	}
	for _, name := range tools.Names() {
		logger.Debug("Using %s at %s", name, tools.Path(name))
	}

	home := env.Home
	if home == "" {
		home, err = os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
	}

	rl, err := relay.New(relay.Options{
		Mode:        cfg.RelayMode(),
		NetcatPath:  tools.Path("nc"),
		DialTimeout: cfg.DialTimeoutDuration(),
	})
	if err != nil {
		return nil, err
	}

	manager := NewManager(cfg,
		connmon.NewProbe(tools.Path(connmon.ListenTool)),
		ssh.New(tools.Path("ssh"), home),
		KillerFunc(procutil.Terminate),
		Options{
			PollInterval: cfg.PollIntervalDuration(),
			StartTimeout: cfg.StartTimeoutDuration(),
		},
	)
	matcher := routing.NewMatcher(cfg)
	resolver := dns.NewResolver(cfg.Hosts)

	return &Service{
		Config:     cfg,
		Tools:      tools,
		Manager:    manager,
		Dispatcher: NewDispatcher(matcher, resolver, manager, rl),
		Matcher:    matcher,
		Resolver:   resolver,
	}, nil
}
