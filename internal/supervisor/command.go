package supervisor

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/loykin/appvisor/internal/registry"
)

// DefaultLauncher starts a definition's entry as an ASGI application.
const DefaultLauncher = "python3 -m uvicorn"

// CommandFunc builds the launch command for a definition. Injectable so
// tests and unusual deployments control what is actually spawned; the
// supervisor still owns workdir, environment, process group attributes
// and output plumbing.
type CommandFunc func(def registry.Definition) *exec.Cmd

// defaultCommand composes
//
//	<launcher...> <entry> --host <host> --port <port> [args...]
//
// mirroring how the managed apps are launched by hand.
func defaultCommand(launcher string) CommandFunc {
	return func(def registry.Definition) *exec.Cmd {
		parts := strings.Fields(launcher)
		if len(parts) == 0 {
			parts = strings.Fields(DefaultLauncher)
		}
		args := append(parts[1:], def.Entry,
			"--host", def.Host,
			"--port", strconv.Itoa(def.Port))
		if extra := strings.TrimSpace(def.Args); extra != "" {
			args = append(args, strings.Fields(extra)...)
		}
		// #nosec G204 -- definitions are operator-provided and validated
		return exec.Command(parts[0], args...)
	}
}
