package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/user/compassh/internal/core"
)

const compasshDesc = `
compassh starts SSH dynamic-forward tunnels on demand and routes
connections through them. Hosts matching a configured pattern are reached
through the pattern's VPN, starting it (and its parents) first; all other
hosts are connected directly.

Use 'compassh proxy %h %p' as an SSH ProxyCommand.
`

// NewRootCmd returns the compassh command tree bound to app.
func NewRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "compassh",
		Short:         "route SSH connections through on-demand tunnels",
		Long:          compasshDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addGlobalFlags(cmd, app)

	cmd.AddCommand(
		newListCmd(app),
		newLifecycleCmd(app, "start", "Start VPNs and their parents", func(names []string) Action { return Start{Tunnels: names} }),
		newLifecycleCmd(app, "stop", "Stop VPNs", func(names []string) Action { return Stop{Tunnels: names} }),
		newLifecycleCmd(app, "restart", "Restart VPNs", func(names []string) Action { return Restart{Tunnels: names} }),
		newConfigCmd(app),
		newHostsCmd(app),
		newPatternsCmd(app),
		newResolveCmd(app),
		newProxyCmd(app, "proxy <host> [port]"),
	)
	return cmd
}

// NewProxyCmd returns the standalone ProxyCommand entry point.
func NewProxyCmd(app *App) *cobra.Command {
	cmd := newProxyCmd(app, "compassh-proxy <host> [port]")
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	addGlobalFlags(cmd, app)
	return cmd
}

func addGlobalFlags(cmd *cobra.Command, app *App) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&app.ConfigPath, "config", "c", "", "Configuration file (default $COMPASSH_CONFIG or ~/.compassh.conf)")
	flags.BoolVarP(&app.Verbose, "verbose", "v", false, "Log debug messages")
}

// run adapts an action builder to cobra.
func run(app *App, build func(args []string) (Action, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		act, err := build(args)
		if err != nil {
			return err
		}
		app.Out = cmd.OutOrStdout()
		return app.Run(cmd.Context(), act)
	}
}

func newListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list [vpn]",
		Aliases: []string{"show", "ls"},
		Short:   "Show VPNs and whether they are running",
		Args:    cobra.MaximumNArgs(1),
		RunE: run(app, func(args []string) (Action, error) {
			if len(args) == 1 {
				return List{Tunnel: args[0]}, nil
			}
			return List{}, nil
		}),
	}
}

func newLifecycleCmd(app *App, verb, short string, build func([]string) Action) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " [vpn...]",
		Short: short + " (all VPNs when none is named)",
		RunE: run(app, func(args []string) (Action, error) {
			return build(args), nil
		}),
	}
}

func newConfigCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config <vpn>",
		Short: "Print the SSH profile of a VPN",
		Args:  cobra.ExactArgs(1),
		RunE: run(app, func(args []string) (Action, error) {
			return ShowProfile{Tunnel: args[0]}, nil
		}),
	}
}

func newHostsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Show address overrides used for tunneled hosts",
		Args:  cobra.NoArgs,
		RunE: run(app, func([]string) (Action, error) {
			return ListHosts{}, nil
		}),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <host> <address>",
			Short: "Set the address used for a host",
			Args:  cobra.ExactArgs(2),
			RunE: run(app, func(args []string) (Action, error) {
				return AddHost{Host: args[0], Addr: args[1]}, nil
			}),
		},
		&cobra.Command{
			Use:   "remove <host>",
			Short: "Remove a host override",
			Args:  cobra.ExactArgs(1),
			RunE: run(app, func(args []string) (Action, error) {
				return RemoveHost{Host: args[0]}, nil
			}),
		},
	)
	return cmd
}

func newPatternsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "Show routing patterns in match order",
		Args:  cobra.NoArgs,
		RunE: run(app, func([]string) (Action, error) {
			return ListPatterns{}, nil
		}),
	}
}

func newResolveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <host>",
		Short: "Show how a host would be reached",
		Args:  cobra.ExactArgs(1),
		RunE: run(app, func(args []string) (Action, error) {
			return Resolve{Host: args[0]}, nil
		}),
	}
}

func newProxyCmd(app *App, use string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: "Relay stdin/stdout to host:port, through a VPN when one matches",
		Args:  cobra.RangeArgs(1, 2),
		RunE: run(app, func(args []string) (Action, error) {
			act := Proxy{Host: args[0], Port: core.DefaultPort}
			if len(args) == 2 {
				port, err := parsePort(args[1])
				if err != nil {
					return nil, err
				}
				act.Port = port
			}
			return act, nil
		}),
	}
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}
