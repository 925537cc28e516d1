package main

import (
	"time"

	"github.com/spf13/cobra"
)

// apiFlags are shared by every command that talks to a running daemon.
type apiFlags struct {
	URL     string
	Timeout time.Duration
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "appvisor",
		Short: "Supervisor for port-bound web applications",
		Long: "appvisor registers, starts, stops and observes locally hosted\n" +
			"web applications. Run 'appvisor serve' to start the daemon, then\n" +
			"use the other commands against its HTTP API.",
		SilenceUsage: true,
	}

	var api apiFlags
	root.PersistentFlags().StringVar(&api.URL, "api-url", "http://127.0.0.1:8900/api", "daemon API base URL")
	root.PersistentFlags().DurationVar(&api.Timeout, "timeout", 30*time.Second, "API request timeout")

	root.AddCommand(
		newServeCmd(),
		newListCmd(&api),
		newRegisterCmd(&api),
		newUnregisterCmd(&api),
		newImportCmd(&api),
		newStartCmd(&api),
		newStopCmd(&api),
		newRestartCmd(&api),
		newStatusCmd(&api),
		newLogsCmd(&api),
	)
	return root
}
