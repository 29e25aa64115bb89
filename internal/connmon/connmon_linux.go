//go:build linux

package connmon

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ListenTool is the external command needed to enumerate listeners.
// Linux reads /proc directly.
const ListenTool = ""

func (p *Probe) listeners(port int) ([]Listener, error) {
	var (
		all     []Listener
		lastErr error
		read    int
	)
	for _, table := range []struct{ file, proto string }{
		{"tcp", "TCP"},
		{"tcp6", "TCP6"},
	} {
		ls, err := parseProcFile(filepath.Join(p.procRoot, "net", table.file))
		if err != nil {
			lastErr = err
			continue
		}
		read++
		for _, l := range ls {
			if int(l.LocalAddr.Port()) != port {
				continue
			}
			l.Protocol = table.proto
			all = append(all, l)
		}
	}
	if read == 0 {
		return nil, fmt.Errorf("failed to read %s/net: %w", p.procRoot, lastErr)
	}

	if len(all) > 0 {
		p.resolvePIDs(all)
	}
	return all, nil
}

func parseProcFile(path string) ([]Listener, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseProcNet(f)
}

// parseProcNet returns the LISTEN rows of a /proc/net/tcp{,6} table.
func parseProcNet(r io.Reader) ([]Listener, error) {
	var ls []Listener
	scanner := bufio.NewScanner(r)
	scanner.Scan() // skip header

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}

		stateVal, err := strconv.ParseUint(fields[3], 16, 8)
		if err != nil || ConnState(stateVal) != StateListen {
			continue
		}

		local, err := parseHexAddrPort(fields[1])
		if err != nil {
			continue
		}

		// UID is in field 7, inode in field 9
		inode, err := strconv.ParseUint(fields[9], 10, 64)
		if err != nil {
			continue
		}

		ls = append(ls, Listener{
			LocalAddr: local,
			Inode:     inode,
		})
	}

	return ls, scanner.Err()
}

func parseHexAddrPort(s string) (netip.AddrPort, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return netip.AddrPort{}, fmt.Errorf("invalid format: %s", s)
	}

	ipBytes, err := hex.DecodeString(parts[0])
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid ip: %s", parts[0])
	}

	// The kernel prints each 32-bit word of the address in host (little-endian) order.
	var ip netip.Addr
	switch len(ipBytes) {
	case 4:
		ip = netip.AddrFrom4([4]byte{ipBytes[3], ipBytes[2], ipBytes[1], ipBytes[0]})
	case 16:
		var b [16]byte
		for w := 0; w < 4; w++ {
			for i := 0; i < 4; i++ {
				b[w*4+i] = ipBytes[w*4+3-i]
			}
		}
		ip = netip.AddrFrom16(b)
	default:
		return netip.AddrPort{}, fmt.Errorf("invalid ip: %s", parts[0])
	}

	portVal, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid port: %s", parts[1])
	}

	return netip.AddrPortFrom(ip, uint16(portVal)), nil
}

// resolvePIDs maps socket inodes to owning processes by scanning
// /proc/<pid>/fd. Processes we may not inspect are skipped, leaving PID 0.
func (p *Probe) resolvePIDs(ls []Listener) {
	want := make(map[string][]int, len(ls))
	for i := range ls {
		link := fmt.Sprintf("socket:[%d]", ls[i].Inode)
		want[link] = append(want[link], i)
	}

	entries, err := os.ReadDir(p.procRoot)
	if err != nil {
		return
	}

	remaining := len(ls)
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		fdDir := filepath.Join(p.procRoot, e.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			idx, ok := want[target]
			if !ok {
				continue
			}
			for _, i := range idx {
				if ls[i].PID == 0 {
					ls[i].PID = pid
					remaining--
				}
			}
			if remaining == 0 {
				return
			}
		}
	}
}
