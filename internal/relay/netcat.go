package relay

import (
	"context"
	"net/netip"
	"strconv"

	"github.com/user/compassh/internal/logger"
	"github.com/user/compassh/internal/procutil"
)

// Netcat hands the connection to nc by replacing the current process, so
// stdin/stdout become nc's byte stream. Successful calls never return.
type Netcat struct {
	path string
	exec func(path string, args ...string) error
}

// NewNetcat creates a netcat relay using the resolved nc binary.
func NewNetcat(path string) *Netcat {
	return &Netcat{path: path, exec: procutil.Exec}
}

// DirectArgs returns the nc arguments for a plain connection.
func (n *Netcat) DirectArgs(host string, port int) []string {
	return []string{host, strconv.Itoa(port)}
}

// SOCKSArgs returns the nc arguments for a SOCKS5 connection. -n is only
// passed for address literals so names can still be resolved by the proxy.
func (n *Netcat) SOCKSArgs(socksAddr, host string, port int) []string {
	var args []string
	if _, err := netip.ParseAddr(host); err == nil {
		args = append(args, "-n")
	}
	return append(args, "-X", "5", "-x", socksAddr, host, strconv.Itoa(port))
}

func (n *Netcat) Direct(_ context.Context, host string, port int) error {
	args := n.DirectArgs(host, port)
	logger.Debug("exec %s %v", n.path, args)
	return n.exec(n.path, args...)
}

func (n *Netcat) ViaSOCKS(_ context.Context, socksAddr, host string, port int) error {
	args := n.SOCKSArgs(socksAddr, host, port)
	logger.Debug("exec %s %v", n.path, args)
	return n.exec(n.path, args...)
}
