package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildRootCommands(t *testing.T) {
	root := buildRoot()
	want := []string{"serve", "list", "register", "unregister", "import", "start", "stop", "restart", "status", "logs"}
	have := make(map[string]bool)
	for _, c := range root.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		require.True(t, have[name], "missing command %q", name)
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := parseID(bad)
		require.Error(t, err, "expected error for %q", bad)
	}
}

func TestRequireDaemonUnreachable(t *testing.T) {
	api := &apiFlags{URL: "http://127.0.0.1:1/api", Timeout: 200 * time.Millisecond}
	root := buildRoot()
	root.SetContext(context.Background())
	_, err := requireDaemon(root, api)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not reachable")
}

func TestRunServeMissingConfig(t *testing.T) {
	require.Error(t, runServe("/nonexistent/appvisor.toml"))
}
