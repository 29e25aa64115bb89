package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/user/compassh/internal/config"
	"github.com/user/compassh/internal/core"
	"github.com/user/compassh/internal/logger"
	"github.com/user/compassh/internal/protocols"
	"github.com/user/compassh/internal/routing"
)

const runningMarker = "*"

func (a *App) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
}

// list prints one row per tunnel, each probed at print time.
func (a *App) list(svc *core.Service, only string) error {
	names := svc.Config.TunnelNames()
	if only != "" {
		if _, err := svc.Config.Tunnel(only); err != nil {
			return err
		}
		names = []string{only}
	}

	w := a.table()
	fmt.Fprintln(w, " \tNAME\tPROXY\tPORT\tPARENT\tPID")
	for _, name := range names {
		st, err := svc.Manager.Status(name)
		if err != nil {
			logger.Error("%v", err)
		}
		marker, pid := "", "-"
		if st.State == protocols.StateRunning {
			marker = runningMarker
			if st.PID != 0 {
				pid = strconv.Itoa(st.PID)
			} else {
				pid = "?"
			}
		}
		parent := st.Tunnel.Parent
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", marker, name, st.Tunnel.Proxy, st.Tunnel.LocalPort, parent, pid)
	}
	return w.Flush()
}

func (a *App) printResult(res core.Result) {
	if res.PID != 0 {
		fmt.Fprintf(a.Out, "%s: %s (pid %d)\n", res.Tunnel, res.Outcome, res.PID)
		return
	}
	fmt.Fprintf(a.Out, "%s: %s\n", res.Tunnel, res.Outcome)
}

func (a *App) showProfile(cfg *config.Config, name string) error {
	if _, err := cfg.Tunnel(name); err != nil {
		return err
	}
	home, err := a.home()
	if err != nil {
		return err
	}
	path := config.DedicatedProfilePath(home, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: VPN %s has no SSH profile at %s", config.ErrNotFound, name, path)
		}
		return fmt.Errorf("failed to read SSH profile: %w", err)
	}
	_, err = a.Out.Write(data)
	return err
}

func (a *App) printHosts(cfg *config.Config) error {
	w := a.table()
	for _, host := range cfg.HostNames() {
		fmt.Fprintf(w, "%s\t%s\n", host, cfg.Hosts[host])
	}
	return w.Flush()
}

func (a *App) printPatterns(cfg *config.Config) error {
	w := a.table()
	for _, rule := range cfg.Patterns {
		fmt.Fprintf(w, "%s\t%s\n", rule.Expr, rule.Tunnel)
	}
	return w.Flush()
}

func (a *App) printPlan(plan core.Plan) error {
	w := a.table()
	fmt.Fprintf(w, "host:\t%s\n", plan.Route.Host)
	switch plan.Route.Outcome {
	case routing.Tunneled:
		fmt.Fprintf(w, "route:\tVPN %s (pattern %q)\n", plan.Route.Tunnel.Name, plan.Route.Pattern)
		fmt.Fprintf(w, "socks:\t%s\n", plan.SOCKS)
	case routing.LoopGuard:
		fmt.Fprintf(w, "route:\tdirect (proxy endpoint of VPN %s)\n", plan.Route.Proxy)
	default:
		fmt.Fprintf(w, "route:\tdirect\n")
	}
	fmt.Fprintf(w, "address:\t%s\n", plan.Address)
	return w.Flush()
}
