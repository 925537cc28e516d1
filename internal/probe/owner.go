package probe

import (
	"fmt"

	gnet "github.com/shirou/gopsutil/v4/net"
)

// OwnerPID resolves the PID of whatever process currently holds a LISTEN
// socket on host:port. The owner is not necessarily a process we spawned:
// a tracked child may have forked a grandchild that inherited or rebound
// the port, and the grandchild is what must be terminated on escalation.
func (p TCP) OwnerPID(host string, port int) (int32, error) {
	conns, err := gnet.Connections("tcp")
	if err != nil {
		return 0, fmt.Errorf("enumerate tcp sockets: %w", err)
	}
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) {
			continue
		}
		if !addrMatches(host, c.Laddr.IP) {
			continue
		}
		if c.Pid <= 0 {
			return 0, fmt.Errorf("listener on %s:%d has no resolvable pid", host, port)
		}
		return c.Pid, nil
	}
	return 0, fmt.Errorf("no listener found on %s:%d", host, port)
}

// addrMatches accepts exact address matches plus wildcard binds on either
// side: a socket bound to 0.0.0.0/:: serves every host, and probing a
// wildcard host matches any listener on the port.
func addrMatches(host, bound string) bool {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return true
	}
	switch bound {
	case "", "0.0.0.0", "::", "*":
		return true
	}
	if bound == host {
		return true
	}
	// loopback aliases
	if (host == "127.0.0.1" || host == "localhost" || host == "::1") &&
		(bound == "127.0.0.1" || bound == "::1" || bound == "localhost") {
		return true
	}
	return false
}
