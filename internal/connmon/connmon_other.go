//go:build !linux && !darwin

package connmon

import (
	"fmt"
	"runtime"
)

// ListenTool is the external command needed to enumerate listeners.
const ListenTool = ""

func (p *Probe) listeners(port int) ([]Listener, error) {
	return nil, fmt.Errorf("listening socket enumeration is not supported on %s", runtime.GOOS)
}
