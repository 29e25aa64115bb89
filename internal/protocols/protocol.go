// Package protocols defines the contract between the tunnel lifecycle and
// the programs that carry a tunnel.
package protocols

import "github.com/user/compassh/internal/config"

// State represents a tunnel state as observed from the OS.
type State int

const (
	StateUnknown State = iota
	StateStopped
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "invalid"
	}
}

// Process is a spawned tunnel process. The caller does not own it: the
// process keeps running after the caller exits.
type Process interface {
	// PID returns the OS process id.
	PID() int

	// Done is closed when the process exits while the caller is still alive.
	Done() <-chan struct{}

	// Err returns the exit error once Done is closed.
	Err() error
}

// Launcher starts the forwarding process for a tunnel.
type Launcher interface {
	Launch(t config.Tunnel) (Process, error)
}
