package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/user/compassh/internal/config"
	"github.com/user/compassh/internal/core"
	"github.com/user/compassh/internal/logger"
)

// ServiceFactory builds the components of one invocation.
type ServiceFactory func(cfg *config.Config, env core.Environment) (*core.Service, error)

// App executes actions against the configuration at ConfigPath.
type App struct {
	ConfigPath string // empty means config.GetConfigPath()
	Verbose    bool
	Home       string // empty means the user's home directory

	Out io.Writer // tables and command output
	Err io.Writer // log output

	NewService ServiceFactory
}

// NewApp returns an App writing to the process stdio.
func NewApp() *App {
	return &App{
		Out:        os.Stdout,
		Err:        os.Stderr,
		NewService: core.NewService,
	}
}

func (a *App) configPath() string {
	if a.ConfigPath != "" {
		return a.ConfigPath
	}
	return config.GetConfigPath()
}

func (a *App) home() (string, error) {
	if a.Home != "" {
		return a.Home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return home, nil
}

// Run loads the configuration and performs action.
func (a *App) Run(ctx context.Context, action Action) error {
	mgr := config.NewManager(a.configPath())
	if err := mgr.Load(); err != nil {
		return err
	}
	cfg := mgr.Get()

	if err := logger.Init(logger.Options{
		Verbose: a.Verbose || cfg.Verbose,
		File:    cfg.LogFile,
		Output:  a.Err,
	}); err != nil {
		logger.Warning("%v", err)
	}
	logger.Debug("Loaded %s: %d VPNs, %d patterns", mgr.Path(), len(cfg.Tunnels), len(cfg.Patterns))

	switch act := action.(type) {
	case List:
		svc, err := a.service(cfg)
		if err != nil {
			return err
		}
		return a.list(svc, act.Tunnel)
	case Start:
		return a.eachTunnel(ctx, cfg, act.Tunnels, func(svc *core.Service, name string) (core.Result, error) {
			return svc.Manager.EnsureRunning(ctx, name)
		})
	case Stop:
		return a.eachTunnel(ctx, cfg, act.Tunnels, func(svc *core.Service, name string) (core.Result, error) {
			return svc.Manager.Stop(ctx, name)
		})
	case Restart:
		return a.eachTunnel(ctx, cfg, act.Tunnels, func(svc *core.Service, name string) (core.Result, error) {
			return svc.Manager.Restart(ctx, name)
		})
	case ShowProfile:
		return a.showProfile(cfg, act.Tunnel)
	case ListHosts:
		return a.printHosts(cfg)
	case AddHost:
		if err := mgr.AddHost(act.Host, act.Addr); err != nil {
			return err
		}
		logger.Info("Added host %s -> %s", act.Host, act.Addr)
		return nil
	case RemoveHost:
		if err := mgr.RemoveHost(act.Host); err != nil {
			return err
		}
		logger.Info("Removed host %s", act.Host)
		return nil
	case ListPatterns:
		return a.printPatterns(cfg)
	case Resolve:
		svc, err := a.service(cfg)
		if err != nil {
			return err
		}
		return a.printPlan(svc.Dispatcher.Plan(ctx, act.Host, 0))
	case Proxy:
		svc, err := a.service(cfg)
		if err != nil {
			return err
		}
		if term.IsTerminal(int(os.Stdin.Fd())) {
			logger.Warning("stdin is a terminal; proxy mode is meant to run as an SSH ProxyCommand")
		}
		return svc.Dispatcher.Dispatch(ctx, act.Host, act.Port)
	default:
		return fmt.Errorf("unhandled action %T", action)
	}
}

func (a *App) service(cfg *config.Config) (*core.Service, error) {
	home, err := a.home()
	if err != nil {
		return nil, err
	}
	return a.NewService(cfg, core.Environment{Home: home})
}

// eachTunnel applies op to the named tunnels, or to every tunnel in name
// order when names is empty. It keeps going after a failure and reports
// all failures together.
func (a *App) eachTunnel(ctx context.Context, cfg *config.Config, names []string, op func(*core.Service, string) (core.Result, error)) error {
	svc, err := a.service(cfg)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		names = cfg.TunnelNames()
	}

	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := op(svc, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a.printResult(res)
	}
	return errors.Join(errs...)
}
