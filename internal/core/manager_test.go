package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/user/compassh/internal/config"
	"github.com/user/compassh/internal/protocols"
)

const chainConfig = `
VPN:
  a: {proxy: a.example.com, local_port: 1080, parent: b}
  b: {proxy: b.example.com, local_port: 1081, parent: c}
  c: {proxy: c.example.com, local_port: 1082}
`

// fakeProbe is an in-memory socket table.
type fakeProbe struct {
	mu     sync.Mutex
	owners map[int]int
	err    error
}

func newFakeProbe() *fakeProbe {
	return &fakeProbe{owners: map[int]int{}}
}

func (p *fakeProbe) Owner(port int) (int, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, false, p.err
	}
	pid, ok := p.owners[port]
	return pid, ok, nil
}

func (p *fakeProbe) bind(port, pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owners[port] = pid
}

func (p *fakeProbe) release(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for port, owner := range p.owners {
		if owner == pid {
			delete(p.owners, port)
		}
	}
}

type fakeProc struct {
	pid  int
	done chan struct{}
	err  error
}

func (p *fakeProc) PID() int              { return p.pid }
func (p *fakeProc) Done() <-chan struct{} { return p.done }
func (p *fakeProc) Err() error            { return p.err }

type behavior int

const (
	bindsPort behavior = iota
	exitsEarly
	losesRace
	hangs
)

const rivalPID = 4242

type fakeLauncher struct {
	probe    *fakeProbe
	behavior map[string]behavior
	spawnErr error

	mu      sync.Mutex
	nextPID int
	started []string
}

func newFakeLauncher(probe *fakeProbe) *fakeLauncher {
	return &fakeLauncher{probe: probe, behavior: map[string]behavior{}, nextPID: 100}
}

func (l *fakeLauncher) Launch(t config.Tunnel) (protocols.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.spawnErr != nil {
		return nil, l.spawnErr
	}
	l.started = append(l.started, t.Name)
	l.nextPID++
	proc := &fakeProc{pid: l.nextPID, done: make(chan struct{})}

	switch l.behavior[t.Name] {
	case bindsPort:
		l.probe.bind(t.LocalPort, proc.pid)
	case exitsEarly:
		proc.err = errors.New("exit status 255")
		close(proc.done)
	case losesRace:
		l.probe.bind(t.LocalPort, rivalPID)
		proc.err = errors.New("exit status 255")
		close(proc.done)
	case hangs:
	}
	return proc, nil
}

func (l *fakeLauncher) startOrder() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.started...)
}

type fakeKiller struct {
	probe  *fakeProbe
	mu     sync.Mutex
	killed []int
}

func (k *fakeKiller) Terminate(pid int) error {
	k.mu.Lock()
	k.killed = append(k.killed, pid)
	k.mu.Unlock()
	k.probe.release(pid)
	return nil
}

type fixture struct {
	cfg      *config.Config
	probe    *fakeProbe
	launcher *fakeLauncher
	killer   *fakeKiller
	manager  *Manager
}

func newFixture(t *testing.T, yaml string) *fixture {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	probe := newFakeProbe()
	launcher := newFakeLauncher(probe)
	killer := &fakeKiller{probe: probe}
	return &fixture{
		cfg:      cfg,
		probe:    probe,
		launcher: launcher,
		killer:   killer,
		manager: NewManager(cfg, probe, launcher, killer, Options{
			PollInterval: time.Millisecond,
			StartTimeout: 50 * time.Millisecond,
			StopTimeout:  50 * time.Millisecond,
			RestartDelay: time.Millisecond,
		}),
	}
}

func TestEnsureRunningStartsAncestorsFirst(t *testing.T) {
	f := newFixture(t, chainConfig)

	res, err := f.manager.EnsureRunning(context.Background(), "a")
	if err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if res.Outcome != OutcomeStarted {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeStarted)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, f.launcher.startOrder()); diff != "" {
		t.Errorf("start order mismatch (-want +got):\n%s", diff)
	}
	for _, name := range []string{"a", "b", "c"} {
		st, err := f.manager.Status(name)
		if err != nil {
			t.Fatalf("Status(%s): %v", name, err)
		}
		if st.State != protocols.StateRunning {
			t.Errorf("%s is %s, want running", name, st.State)
		}
	}
}

func TestEnsureRunningSkipsRunningAncestors(t *testing.T) {
	f := newFixture(t, chainConfig)
	f.probe.bind(1082, 77)

	if _, err := f.manager.EnsureRunning(context.Background(), "a"); err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if diff := cmp.Diff([]string{"b", "a"}, f.launcher.startOrder()); diff != "" {
		t.Errorf("start order mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureRunningIsIdempotent(t *testing.T) {
	f := newFixture(t, chainConfig)
	f.probe.bind(1080, 55)

	res, err := f.manager.EnsureRunning(context.Background(), "a")
	if err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if res.Outcome != OutcomeAlreadyRunning || res.PID != 55 {
		t.Errorf("result = %+v, want already running with pid 55", res)
	}
	if got := f.launcher.startOrder(); len(got) != 0 {
		t.Errorf("launched %v for a running tunnel", got)
	}
}

func TestEnsureRunningAbortsWhenParentFails(t *testing.T) {
	f := newFixture(t, chainConfig)
	f.launcher.behavior["b"] = exitsEarly

	_, err := f.manager.EnsureRunning(context.Background(), "a")
	if !errors.Is(err, ErrParentDown) {
		t.Fatalf("error = %v, want ErrParentDown", err)
	}
	if !errors.Is(err, ErrStartFailed) {
		t.Errorf("error = %v does not wrap ErrStartFailed", err)
	}
	if diff := cmp.Diff([]string{"c", "b"}, f.launcher.startOrder()); diff != "" {
		t.Errorf("start order mismatch (-want +got):\n%s", diff)
	}

	// c stays up; no rollback.
	st, err := f.manager.Status("c")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != protocols.StateRunning {
		t.Errorf("c is %s, want running", st.State)
	}
}

func TestEnsureRunningOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		behavior behavior
		spawnErr error
		want     Outcome
		wantErr  []error
	}{
		{name: "binds", behavior: bindsPort, want: OutcomeStarted},
		{name: "lost race", behavior: losesRace, want: OutcomeLostRace},
		{name: "exits early", behavior: exitsEarly, wantErr: []error{ErrStartFailed}},
		{name: "never binds", behavior: hangs, wantErr: []error{ErrStartFailed, ErrStartTimeout}},
		{name: "spawn error", spawnErr: errors.New("fork failed"), wantErr: []error{ErrStartFailed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, chainConfig)
			f.launcher.behavior["c"] = tt.behavior
			f.launcher.spawnErr = tt.spawnErr

			res, err := f.manager.EnsureRunning(context.Background(), "c")
			if len(tt.wantErr) > 0 {
				if err == nil {
					t.Fatalf("expected error, got %+v", res)
				}
				for _, want := range tt.wantErr {
					if !errors.Is(err, want) {
						t.Errorf("error %v is not %v", err, want)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("EnsureRunning: %v", err)
			}
			if res.Outcome != tt.want {
				t.Errorf("outcome = %s, want %s", res.Outcome, tt.want)
			}
		})
	}
}

func TestEnsureRunningLostRaceReportsRival(t *testing.T) {
	f := newFixture(t, chainConfig)
	f.launcher.behavior["c"] = losesRace

	res, err := f.manager.EnsureRunning(context.Background(), "c")
	if err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if res.PID != rivalPID {
		t.Errorf("pid = %d, want %d", res.PID, rivalPID)
	}
}

func TestEnsureRunningProbeError(t *testing.T) {
	f := newFixture(t, chainConfig)
	f.probe.err = errors.New("permission denied")

	if _, err := f.manager.EnsureRunning(context.Background(), "c"); err == nil {
		t.Fatal("expected probe error")
	}
	if got := f.launcher.startOrder(); len(got) != 0 {
		t.Errorf("launched %v despite unknown state", got)
	}
}

func TestEnsureRunningUnknownTunnel(t *testing.T) {
	f := newFixture(t, chainConfig)
	if _, err := f.manager.EnsureRunning(context.Background(), "zz"); !errors.Is(err, config.ErrUnknownTunnel) {
		t.Fatalf("error = %v, want ErrUnknownTunnel", err)
	}
}

func TestStop(t *testing.T) {
	f := newFixture(t, chainConfig)
	f.probe.bind(1081, 900)

	res, err := f.manager.Stop(context.Background(), "b")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Outcome != OutcomeStopped || res.PID != 900 {
		t.Errorf("result = %+v, want stopped pid 900", res)
	}
	if diff := cmp.Diff([]int{900}, f.killer.killed); diff != "" {
		t.Errorf("killed mismatch (-want +got):\n%s", diff)
	}

	res, err = f.manager.Stop(context.Background(), "b")
	if err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if res.Outcome != OutcomeAlreadyStopped {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeAlreadyStopped)
	}
	if len(f.killer.killed) != 1 {
		t.Errorf("stopped tunnel was signalled again: %v", f.killer.killed)
	}
}

func TestStopUnknownOwner(t *testing.T) {
	f := newFixture(t, chainConfig)
	f.probe.bind(1081, 0)

	if _, err := f.manager.Stop(context.Background(), "b"); !errors.Is(err, ErrOwnerUnknown) {
		t.Fatalf("error = %v, want ErrOwnerUnknown", err)
	}
	if len(f.killer.killed) != 0 {
		t.Errorf("signalled %v", f.killer.killed)
	}
}

func TestStopTimeout(t *testing.T) {
	f := newFixture(t, chainConfig)
	f.probe.bind(1081, 900)
	f.manager.killer = KillerFunc(func(int) error { return nil })

	if _, err := f.manager.Stop(context.Background(), "b"); !errors.Is(err, ErrStopTimeout) {
		t.Fatalf("error = %v, want ErrStopTimeout", err)
	}
}

func TestRestart(t *testing.T) {
	f := newFixture(t, chainConfig)
	f.probe.bind(1082, 900)

	res, err := f.manager.Restart(context.Background(), "c")
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if res.Outcome != OutcomeStarted || res.PID == 900 {
		t.Errorf("result = %+v, want a fresh start", res)
	}
	if diff := cmp.Diff([]int{900}, f.killer.killed); diff != "" {
		t.Errorf("killed mismatch (-want +got):\n%s", diff)
	}
}

func TestRestartStoppedTunnel(t *testing.T) {
	f := newFixture(t, chainConfig)

	res, err := f.manager.Restart(context.Background(), "c")
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if res.Outcome != OutcomeStarted {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeStarted)
	}
}
