package probe

import (
	"net"
	"strconv"
	"time"
)

// DefaultTimeout bounds a single connection attempt.
const DefaultTimeout = 250 * time.Millisecond

// Prober answers whether host:port is currently accepting connections and,
// for escalated shutdown, which OS process owns the listening socket.
// Implementations must be safe for concurrent use.
type Prober interface {
	// IsBound reports whether something is serving on host:port right now.
	// Any connection failure (refused, timeout, unreachable) counts as not bound.
	IsBound(host string, port int) bool
	// OwnerPID returns the PID of the process listening on host:port.
	OwnerPID(host string, port int) (int32, error)
}

// TCP probes by opening and immediately closing a transient connection.
type TCP struct {
	Timeout time.Duration
}

func (p TCP) IsBound(host string, port int) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
