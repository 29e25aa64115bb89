package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/compassh/internal/config"
	"github.com/user/compassh/internal/logger"
	"github.com/user/compassh/internal/protocols"
)

// EnsureRunning starts the named tunnel unless it is already up. Parents
// are brought up first, root ancestor first; if a parent does not come up
// the tunnel is not started. Tunnels already started earlier in the chain
// are left running.
func (m *Manager) EnsureRunning(ctx context.Context, name string) (Result, error) {
	return m.ensureRunning(ctx, name, 0)
}

func (m *Manager) ensureRunning(ctx context.Context, name string, depth int) (Result, error) {
	t, err := m.cfg.Tunnel(name)
	if err != nil {
		return Result{}, err
	}
	if depth > len(m.cfg.Tunnels) {
		return Result{}, fmt.Errorf("%w: at VPN %s", config.ErrParentCycle, name)
	}

	st, err := m.status(t)
	if err != nil {
		return Result{}, err
	}
	if st.State == protocols.StateRunning {
		logger.Debug("VPN %s already running (pid %d)", name, st.PID)
		return Result{Tunnel: name, Outcome: OutcomeAlreadyRunning, PID: st.PID}, nil
	}

	if t.Parent != "" {
		if _, err := m.ensureRunning(ctx, t.Parent, depth+1); err != nil {
			logger.Error("Not starting VPN %s: parent %s failed: %v", name, t.Parent, err)
			return Result{}, fmt.Errorf("%w: VPN %s needs %s: %w", ErrParentDown, name, t.Parent, err)
		}
	}

	return m.start(ctx, t)
}

func (m *Manager) start(ctx context.Context, t config.Tunnel) (Result, error) {
	logger.Info("Starting VPN %s on port %d via %s", t.Name, t.LocalPort, t.Proxy)

	proc, err := m.launcher.Launch(t)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	res, err := m.awaitReady(ctx, t, proc)
	if err != nil {
		logger.Error("VPN %s: %v", t.Name, err)
		return Result{}, err
	}
	switch res.Outcome {
	case OutcomeLostRace:
		logger.Warning("VPN %s was started concurrently by pid %d; using it", t.Name, res.PID)
	default:
		logger.Connection("VPN %s up on port %d (pid %d)", t.Name, t.LocalPort, res.PID)
	}
	return res, nil
}

// awaitReady polls the socket table until the tunnel port is bound, the
// spawned process dies without binding it, or the start timeout elapses.
func (m *Manager) awaitReady(ctx context.Context, t config.Tunnel, proc protocols.Process) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.StartTimeout)
	defer cancel()

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	exited := false
	for {
		pid, running, err := m.probe.Owner(t.LocalPort)
		if err != nil {
			return Result{}, fmt.Errorf("%w: VPN %s: %w", ErrStartFailed, t.Name, err)
		}
		if running {
			// An unidentifiable owner counts as ours while our process lives.
			if pid == proc.PID() || (pid == 0 && !exited) {
				return Result{Tunnel: t.Name, Outcome: OutcomeStarted, PID: proc.PID()}, nil
			}
			return Result{Tunnel: t.Name, Outcome: OutcomeLostRace, PID: pid}, nil
		}
		if exited {
			return Result{}, fmt.Errorf("%w: VPN %s: ssh exited without binding port %d: %v",
				ErrStartFailed, t.Name, t.LocalPort, proc.Err())
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Result{}, fmt.Errorf("%w: %w: VPN %s after %s",
					ErrStartFailed, ErrStartTimeout, t.Name, m.opts.StartTimeout)
			}
			return Result{}, ctx.Err()
		case <-proc.Done():
			exited = true
		case <-ticker.C:
		}
	}
}

// Stop terminates the named tunnel. Stopping a tunnel that is not running
// is not an error.
func (m *Manager) Stop(ctx context.Context, name string) (Result, error) {
	t, err := m.cfg.Tunnel(name)
	if err != nil {
		return Result{}, err
	}
	st, err := m.status(t)
	if err != nil {
		return Result{}, err
	}
	if st.State != protocols.StateRunning {
		logger.Info("VPN %s is not running", name)
		return Result{Tunnel: name, Outcome: OutcomeAlreadyStopped}, nil
	}
	if st.PID == 0 {
		return Result{}, fmt.Errorf("%w: VPN %s port %d", ErrOwnerUnknown, name, t.LocalPort)
	}

	logger.Info("Stopping VPN %s (pid %d)", name, st.PID)
	if err := m.killer.Terminate(st.PID); err != nil {
		return Result{}, err
	}
	if err := m.awaitStopped(ctx, t); err != nil {
		return Result{}, err
	}
	logger.Connection("VPN %s stopped", name)
	return Result{Tunnel: name, Outcome: OutcomeStopped, PID: st.PID}, nil
}

func (m *Manager) awaitStopped(ctx context.Context, t config.Tunnel) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.StopTimeout)
	defer cancel()

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		_, running, err := m.probe.Owner(t.LocalPort)
		if err != nil {
			return fmt.Errorf("VPN %s: %w", t.Name, err)
		}
		if !running {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: VPN %s still bound to port %d", ErrStopTimeout, t.Name, t.LocalPort)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Restart stops the tunnel, waits briefly, then starts it again.
func (m *Manager) Restart(ctx context.Context, name string) (Result, error) {
	if _, err := m.Stop(ctx, name); err != nil {
		return Result{}, err
	}

	timer := time.NewTimer(m.opts.RestartDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-timer.C:
	}

	return m.EnsureRunning(ctx, name)
}
