package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/loykin/appvisor/internal/registry"
	"github.com/loykin/appvisor/pkg/client"
)

func apiClient(api *apiFlags) *client.Client {
	return client.New(client.Config{BaseURL: api.URL, Timeout: api.Timeout})
}

func requireDaemon(cmd *cobra.Command, api *apiFlags) (*client.Client, error) {
	c := apiClient(api)
	if !c.IsReachable(cmd.Context()) {
		return nil, fmt.Errorf("daemon not reachable at %s - start it with 'appvisor serve'", api.URL)
	}
	return c, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid app id %q", arg)
	}
	return id, nil
}

func newListCmd(api *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered apps with their derived state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireDaemon(cmd, api)
			if err != nil {
				return err
			}
			list, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(list)
			return nil
		},
	}
}

func newRegisterCmd(api *apiFlags) *cobra.Command {
	var def registry.Definition
	var disabled bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new app definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireDaemon(cmd, api)
			if err != nil {
				return err
			}
			def.Enabled = !disabled
			created, err := c.Register(cmd.Context(), def)
			if err != nil {
				return err
			}
			printJSON(created)
			return nil
		},
	}
	cmd.Flags().StringVar(&def.Name, "name", "", "unique app name")
	cmd.Flags().StringVar(&def.Path, "path", "", "working directory of the app")
	cmd.Flags().StringVar(&def.Entry, "entry", "", "ASGI entry, e.g. app.main:app")
	cmd.Flags().StringVar(&def.Host, "host", "127.0.0.1", "host the app binds")
	cmd.Flags().IntVar(&def.Port, "port", 0, "port the app binds")
	cmd.Flags().StringVar(&def.Args, "args", "", "extra launch arguments")
	cmd.Flags().StringSliceVar(&def.Env, "env", nil, "extra K=V environment entries")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "register without allowing starts")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("port")
	return cmd
}

func newUnregisterCmd(api *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <id>",
		Short: "Delete an app definition (the app must not be running)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := requireDaemon(cmd, api)
			if err != nil {
				return err
			}
			if err := c.Unregister(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("app %d unregistered\n", id)
			return nil
		},
	}
}

func newImportCmd(api *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <apps.yaml>",
		Short: "Upsert app definitions from a YAML file on the daemon host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireDaemon(cmd, api)
			if err != nil {
				return err
			}
			names, err := c.ImportYAML(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(map[string][]string{"imported": names})
			return nil
		},
	}
}

func newStartCmd(api *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start an app and wait for its port to accept connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := requireDaemon(cmd, api)
			if err != nil {
				return err
			}
			res, err := c.Start(cmd.Context(), id)
			if err != nil {
				return err
			}
			printJSON(res)
			return nil
		},
	}
}

func newStopCmd(api *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a running app, escalating if it ignores the request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := requireDaemon(cmd, api)
			if err != nil {
				return err
			}
			st, err := c.Stop(cmd.Context(), id)
			if err != nil {
				return err
			}
			printJSON(st)
			return nil
		},
	}
}

func newRestartCmd(api *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <id>",
		Short: "Restart an app (stop then start as one operation)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := requireDaemon(cmd, api)
			if err != nil {
				return err
			}
			res, err := c.Restart(cmd.Context(), id)
			if err != nil {
				return err
			}
			printJSON(res)
			return nil
		},
	}
}

func newStatusCmd(api *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the derived status of an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := requireDaemon(cmd, api)
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context(), id)
			if err != nil {
				return err
			}
			printJSON(st)
			return nil
		},
	}
}

func newLogsCmd(api *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <id>",
		Short: "Print the captured output of an app's current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := requireDaemon(cmd, api)
			if err != nil {
				return err
			}
			lines, err := c.Logs(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		},
	}
}
