//go:build darwin

package connmon

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os/exec"
	"strconv"
	"strings"
)

// ListenTool is the external command needed to enumerate listeners.
const ListenTool = "lsof"

func (p *Probe) listeners(port int) ([]Listener, error) {
	if p.lsofPath == "" {
		return nil, fmt.Errorf("%s path not resolved", ListenTool)
	}
	out, err := exec.Command(p.lsofPath, "-nP", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN", "-Fpn").Output()
	if err != nil {
		// lsof exits 1 with no output when nothing matches.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && len(bytes.TrimSpace(out)) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof failed: %w", err)
	}
	return parseLsof(bytes.NewReader(out), port)
}

// parseLsof reads lsof -F output: a "p<pid>" line starts a process, each
// following "n<addr>:<port>" line is one of its sockets.
func parseLsof(r io.Reader, port int) ([]Listener, error) {
	var (
		ls  []Listener
		pid int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		switch line[0] {
		case 'p':
			v, err := strconv.Atoi(line[1:])
			if err != nil {
				return nil, fmt.Errorf("invalid lsof pid line: %s", line)
			}
			pid = v
		case 'n':
			addr, err := parseLsofAddr(line[1:])
			if err != nil || int(addr.Port()) != port {
				continue
			}
			proto := "TCP"
			if addr.Addr().Is6() {
				proto = "TCP6"
			}
			ls = append(ls, Listener{Protocol: proto, LocalAddr: addr, PID: pid})
		}
	}
	return ls, scanner.Err()
}

func parseLsofAddr(s string) (netip.AddrPort, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return netip.AddrPort{}, fmt.Errorf("invalid addr: %s", s)
	}
	host, portStr := s[:i], s[i+1:]
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "*" {
		host = "0.0.0.0"
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid port: %s", portStr)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(ip, uint16(port)), nil
}
