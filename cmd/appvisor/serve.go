package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/appvisor/internal/config"
	"github.com/loykin/appvisor/internal/history"
	"github.com/loykin/appvisor/internal/logger"
	"github.com/loykin/appvisor/internal/metrics"
	"github.com/loykin/appvisor/internal/registry"
	"github.com/loykin/appvisor/internal/server"
	"github.com/loykin/appvisor/internal/supervisor"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the appvisor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "appvisor.toml", "path to the daemon TOML config")
	return cmd
}

func runServe(configPath string) error {
	fc, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if fc.Log != nil {
		logger.Setup(*fc.Log)
	} else {
		logger.Setup(logger.Config{Level: "info", Color: true})
	}

	store, err := registry.Open(fc.Registry.Path)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer func() { _ = store.Close() }()

	sup := supervisor.New(store, fc.Supervisor)
	globalEnv, err := fc.GlobalEnv()
	if err != nil {
		return err
	}
	sup.SetGlobalEnv(globalEnv)

	if fc.History != nil {
		sink, err := history.NewSink(*fc.History)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
		sup.SetHistorySinks(sink)
	}

	if err := metrics.RegisterDefault(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	srv, err := server.NewServer(fc.Server.Listen, fc.Server.BasePath, sup, store)
	if err != nil {
		return err
	}
	slog.Info("appvisor daemon listening",
		"addr", fc.Server.Listen, "base_path", fc.Server.BasePath, "registry", fc.Registry.Path)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sup.Shutdown(ctx)
	return srv.Shutdown(ctx)
}
