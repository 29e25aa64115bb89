// Package relay forwards the proxy-mode byte stream (stdin/stdout) to its
// destination, either directly or through a tunnel's local SOCKS endpoint.
package relay

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/user/compassh/internal/config"
)

// Relay forwards one connection and returns when it ends.
type Relay interface {
	// Direct connects to host:port without a tunnel.
	Direct(ctx context.Context, host string, port int) error

	// ViaSOCKS connects to host:port through the SOCKS5 endpoint socksAddr.
	ViaSOCKS(ctx context.Context, socksAddr, host string, port int) error
}

// Options configures New.
type Options struct {
	Mode        config.RelayMode
	NetcatPath  string
	DialTimeout time.Duration
}

// New returns the relay selected by opts.Mode.
func New(opts Options) (Relay, error) {
	switch opts.Mode {
	case config.RelayNetcat, "":
		if opts.NetcatPath == "" {
			return nil, fmt.Errorf("netcat relay needs the nc path")
		}
		return NewNetcat(opts.NetcatPath), nil
	case config.RelayNative:
		return NewNative(opts.DialTimeout), nil
	default:
		return nil, fmt.Errorf("unknown relay: %s", opts.Mode)
	}
}

// SOCKSAddr returns the loopback SOCKS endpoint of a tunnel on localPort.
func SOCKSAddr(localPort int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort))
}
