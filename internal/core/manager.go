package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/user/compassh/internal/config"
	"github.com/user/compassh/internal/protocols"
)

var (
	ErrStartFailed  = errors.New("VPN failed to start")
	ErrStartTimeout = errors.New("VPN did not come up in time")
	ErrParentDown   = errors.New("parent VPN is not running")
	ErrStopTimeout  = errors.New("VPN did not stop in time")
	ErrOwnerUnknown = errors.New("cannot identify the process listening on the VPN port")
)

// Probe reports which process listens on a local port.
type Probe interface {
	Owner(port int) (pid int, running bool, err error)
}

// Killer terminates a process.
type Killer interface {
	Terminate(pid int) error
}

// KillerFunc adapts a function to Killer.
type KillerFunc func(pid int) error

func (f KillerFunc) Terminate(pid int) error {
	return f(pid)
}

// Options tunes lifecycle timing. Zero values take the defaults.
type Options struct {
	PollInterval time.Duration
	StartTimeout time.Duration
	StopTimeout  time.Duration
	RestartDelay time.Duration
}

const (
	DefaultStopTimeout  = 5 * time.Second
	DefaultRestartDelay = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = config.DefaultPollInterval
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = config.DefaultStartTimeout
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.RestartDelay <= 0 {
		o.RestartDelay = DefaultRestartDelay
	}
	return o
}

// Manager starts, stops and restarts tunnels.
type Manager struct {
	cfg      *config.Config
	probe    Probe
	launcher protocols.Launcher
	killer   Killer
	opts     Options
}

// NewManager creates a lifecycle manager.
func NewManager(cfg *config.Config, probe Probe, launcher protocols.Launcher, killer Killer, opts Options) *Manager {
	return &Manager{
		cfg:      cfg,
		probe:    probe,
		launcher: launcher,
		killer:   killer,
		opts:     opts.withDefaults(),
	}
}

// Outcome describes what a lifecycle call did.
type Outcome int

const (
	OutcomeStarted Outcome = iota
	OutcomeAlreadyRunning
	// OutcomeLostRace means our process could not bind the port because
	// another instance of the tunnel came up first. The tunnel is usable.
	OutcomeLostRace
	OutcomeStopped
	OutcomeAlreadyStopped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeAlreadyRunning:
		return "already running"
	case OutcomeLostRace:
		return "already started by another invocation"
	case OutcomeStopped:
		return "stopped"
	case OutcomeAlreadyStopped:
		return "not running"
	default:
		return "unknown"
	}
}

// Result is the outcome of a lifecycle call for one tunnel.
type Result struct {
	Tunnel  string
	Outcome Outcome
	PID     int
}

// Status is a point-in-time view of one tunnel.
type Status struct {
	Tunnel config.Tunnel
	State  protocols.State
	PID    int
}

// Status probes the named tunnel.
func (m *Manager) Status(name string) (Status, error) {
	t, err := m.cfg.Tunnel(name)
	if err != nil {
		return Status{}, err
	}
	return m.status(t)
}

func (m *Manager) status(t config.Tunnel) (Status, error) {
	pid, running, err := m.probe.Owner(t.LocalPort)
	if err != nil {
		return Status{Tunnel: t, State: protocols.StateUnknown}, fmt.Errorf("VPN %s: %w", t.Name, err)
	}
	if !running {
		return Status{Tunnel: t, State: protocols.StateStopped}, nil
	}
	return Status{Tunnel: t, State: protocols.StateRunning, PID: pid}, nil
}
