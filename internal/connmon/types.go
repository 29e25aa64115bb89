package connmon

import (
	"fmt"
	"net/netip"
)

// ConnState represents the state of a TCP socket as numbered by the Linux kernel.
type ConnState int

const (
	StateEstablished ConnState = 1
	StateSynSent     ConnState = 2
	StateSynReceived ConnState = 3
	StateFinWait1    ConnState = 4
	StateFinWait2    ConnState = 5
	StateTimeWait    ConnState = 6
	StateClosed      ConnState = 7
	StateCloseWait   ConnState = 8
	StateLastAck     ConnState = 9
	StateListen      ConnState = 10
	StateClosing     ConnState = 11
)

// String returns a human-readable name for the socket state.
func (s ConnState) String() string {
	switch s {
	case StateEstablished:
		return "ESTABLISHED"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynReceived:
		return "SYN_RECV"
	case StateFinWait1:
		return "FIN_WAIT1"
	case StateFinWait2:
		return "FIN_WAIT2"
	case StateTimeWait:
		return "TIME_WAIT"
	case StateClosed:
		return "CLOSED"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateLastAck:
		return "LAST_ACK"
	case StateListen:
		return "LISTEN"
	case StateClosing:
		return "CLOSING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Listener is a TCP socket in LISTEN state.
type Listener struct {
	Protocol  string // "TCP" or "TCP6"
	LocalAddr netip.AddrPort
	PID       int    // 0 when the owner could not be determined
	Inode     uint64 // linux only
}
