// Package ssh launches OpenSSH dynamic-forward (SOCKS) processes for tunnels.
package ssh

import (
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/user/compassh/internal/config"
	"github.com/user/compassh/internal/logger"
	"github.com/user/compassh/internal/procutil"
	"github.com/user/compassh/internal/protocols"
)

// BindAddress is the address the dynamic forward listens on.
const BindAddress = "0.0.0.0"

// Launcher runs `ssh -D` as a detached background process.
type Launcher struct {
	sshPath string
	home    string
}

// New creates a launcher using the resolved ssh binary. home locates the
// per-tunnel profile files.
func New(sshPath, home string) *Launcher {
	return &Launcher{
		sshPath: sshPath,
		home:    home,
	}
}

// Args returns the ssh arguments for t.
func (l *Launcher) Args(t config.Tunnel) []string {
	return []string{
		"-F", config.ProfilePath(l.home, t.Name),
		"-N",
		"-o", "ExitOnForwardFailure=yes",
		"-D", BindAddress + ":" + strconv.Itoa(t.LocalPort),
		t.Proxy,
	}
}

// Launch starts the tunnel process and returns without waiting for it.
func (l *Launcher) Launch(t config.Tunnel) (protocols.Process, error) {
	cmd := procutil.Detach(exec.Command(l.sshPath, l.Args(t)...))
	logger.Debug("Launching %s %v", l.sshPath, cmd.Args[1:])

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ssh for VPN %s: %w", t.Name, err)
	}

	p := &process{
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()

	logger.Connection("Spawned ssh for VPN %s (pid %d, port %d)", t.Name, p.pid, t.LocalPort)
	return p, nil
}

type process struct {
	pid  int
	done chan struct{}

	mu  sync.Mutex
	err error
}

func (p *process) PID() int {
	return p.pid
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
