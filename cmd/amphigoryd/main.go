// Command amphigoryd is the host-resident daemon: it owns the optical
// drive, watches for disc insert/eject events, runs the scan and rip
// drivers, and dials the controller over the persistent link.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"amphigory/internal/config"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string

	root := &cobra.Command{
		Use:           "amphigoryd",
		Short:         "Amphigory optical-drive daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to daemon config file")

	root.AddCommand(newRunCommand(&configFlag))
	root.AddCommand(newConfigCommand(&configFlag))

	return root
}

func newRunCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runDaemon(ctx, *configFlag)
		},
	}
}

func newConfigCommand(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved daemon configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration and the path it was loaded from",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := config.LoadDaemonConfig(*configFlag)
			if err != nil {
				return err
			}
			fmt.Printf("config file: %s\n", path)
			fmt.Printf("daemon_id: %s\n", cfg.DaemonID)
			fmt.Printf("task_dir: %s\n", cfg.TaskDir)
			fmt.Printf("optical: %s\n", cfg.OpticalDrive)
			fmt.Printf("link_url: %s\n", cfg.LinkURL)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a commented sample config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultDaemonConfigPath()
			if *configFlag != "" {
				path = *configFlag
			}
			if err != nil {
				return err
			}
			return config.CreateDaemonSample(path)
		},
	})
	return cmd
}
