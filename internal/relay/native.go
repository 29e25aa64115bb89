package relay

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	"github.com/user/compassh/internal/logger"
)

// Native relays in-process between In/Out and the destination connection.
type Native struct {
	DialTimeout time.Duration
	In          io.Reader
	Out         io.Writer
}

// NewNative creates a native relay over stdin/stdout.
func NewNative(dialTimeout time.Duration) *Native {
	return &Native{
		DialTimeout: dialTimeout,
		In:          os.Stdin,
		Out:         os.Stdout,
	}
}

func (n *Native) Direct(ctx context.Context, host string, port int) error {
	d := net.Dialer{Timeout: n.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("failed to connect to %s:%d: %w", host, port, err)
	}
	logger.Connection("Connected directly to %s:%d", host, port)
	return n.pipe(ctx, conn)
}

func (n *Native) ViaSOCKS(ctx context.Context, socksAddr, host string, port int) error {
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, &net.Dialer{Timeout: n.DialTimeout})
	if err != nil {
		return fmt.Errorf("failed to create SOCKS dialer: %w", err)
	}
	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return fmt.Errorf("SOCKS dialer does not support contexts")
	}

	// The handshake is bounded; the relayed stream is not.
	hctx, cancel := context.WithTimeout(ctx, n.DialTimeout)
	conn, err := cd.DialContext(hctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to %s:%d via %s: %w", host, port, socksAddr, err)
	}
	logger.Connection("Connected to %s:%d via SOCKS %s", host, port, socksAddr)
	return n.pipe(ctx, conn)
}

// pipe copies In to conn and conn to Out. It returns once the remote side
// is done; a reader blocked on In is left behind for process exit to reap.
func (n *Native) pipe(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	go func() {
		if _, err := io.Copy(conn, n.In); err != nil {
			logger.Debug("local to remote: copy error: %s", err)
		}
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			if err := cw.CloseWrite(); err != nil {
				logger.Debug("local to remote: closeWrite error: %s", err)
			}
		}
	}()

	written, err := io.Copy(n.Out, conn)
	logger.Debug("remote to local: done, %d bytes", written)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}
