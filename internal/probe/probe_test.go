package probe

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	addr := ln.Addr().(*net.TCPAddr)
	return ln, "127.0.0.1", addr.Port
}

func TestIsBound(t *testing.T) {
	ln, host, port := listen(t)
	p := TCP{}

	require.True(t, p.IsBound(host, port))

	require.NoError(t, ln.Close())
	require.False(t, p.IsBound(host, port))
}

func TestIsBoundUnreachableHost(t *testing.T) {
	p := TCP{}
	// reserved TEST-NET-1 address, nothing answers there
	require.False(t, p.IsBound("192.0.2.1", 1))
}

func TestOwnerPID(t *testing.T) {
	_, host, port := listen(t)
	p := TCP{}

	pid, err := p.OwnerPID(host, port)
	if err != nil {
		t.Skipf("connection table not readable here: %v", err)
	}
	require.Equal(t, int32(os.Getpid()), pid)
}

func TestOwnerPIDUnboundPort(t *testing.T) {
	ln, host, port := listen(t)
	require.NoError(t, ln.Close())

	p := TCP{}
	_, err := p.OwnerPID(host, port)
	require.Error(t, err)
}
