// Package connmon answers "which process is listening on this TCP port".
//
// Every query takes a fresh snapshot of the OS socket table. Nothing is
// cached between calls: the socket table is the only state shared between
// independent compassh invocations.
package connmon

import (
	"fmt"
	"sort"

	"github.com/user/compassh/internal/logger"
)

// Probe inspects listening TCP sockets.
type Probe struct {
	procRoot string // linux
	lsofPath string // darwin
}

// NewProbe creates a probe. lsofPath is the resolved ListenTool and may be
// empty on platforms that read the socket table directly.
func NewProbe(lsofPath string) *Probe {
	return &Probe{procRoot: "/proc", lsofPath: lsofPath}
}

// Listeners returns the listening sockets bound to port.
func (p *Probe) Listeners(port int) ([]Listener, error) {
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	return p.listeners(port)
}

// Owner reports the process listening on port. running is true only when
// the listening sockets on port belong to exactly one process; pid is 0 if
// that process could not be identified (for example, it belongs to another
// user).
func (p *Probe) Owner(port int) (pid int, running bool, err error) {
	ls, err := p.Listeners(port)
	if err != nil {
		return 0, false, err
	}
	pids := distinctPIDs(ls)
	switch len(pids) {
	case 0:
		return 0, false, nil
	case 1:
		return pids[0], true, nil
	default:
		logger.Warning("Port %d is bound by several processes %v; treating as not running", port, pids)
		return 0, false, nil
	}
}

func distinctPIDs(ls []Listener) []int {
	seen := make(map[int]bool, len(ls))
	var pids []int
	for _, l := range ls {
		if !seen[l.PID] {
			seen[l.PID] = true
			pids = append(pids, l.PID)
		}
	}
	sort.Ints(pids)
	return pids
}
