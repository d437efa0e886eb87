// Command amphigoryctl is the containerized control-plane: it serves the
// HTTP/HTMX surface, holds the durable SQLite metadata store, produces
// rip/transcode task pairs, runs the transcode/insert consumer loop, and
// accepts the daemon's persistent-link connection.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"amphigory/internal/config"
	"amphigory/internal/taskqueue"
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
		Use:           "amphigoryctl",
		Short:         "Amphigory control-plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to controller config file")

	root.AddCommand(newServeCommand(&configFlag))
	root.AddCommand(newConfigCommand(&configFlag))
	root.AddCommand(newQueueCommand(&configFlag))
	root.AddCommand(newStatusCommand(&configFlag))

	return root
}

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP surface, link server, and consumer loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runController(ctx, *configFlag)
		},
	}
}

func newConfigCommand(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved controller configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration and the path it was loaded from",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := config.LoadControllerConfig(*configFlag)
			if err != nil {
				return err
			}
			fmt.Printf("config file: %s\n", path)
			fmt.Printf("task_dir: %s\n", cfg.TaskDir)
			fmt.Printf("store_path: %s\n", cfg.StorePath)
			fmt.Printf("link_bind: %s\n", cfg.LinkBind)
			fmt.Printf("api_bind: %s\n", cfg.APIBind)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a commented sample config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultControllerConfigPath()
			if *configFlag != "" {
				path = *configFlag
			}
			if err != nil {
				return err
			}
			return config.CreateControllerSample(path)
		},
	})
	return cmd
}

// newQueueCommand exposes a small local operator view over the task
// directory, rendered as a go-pretty table rather than raw JSON.
func newQueueCommand(configFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the shared task directory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued and in-progress tasks in claim order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.LoadControllerConfig(*configFlag)
			if err != nil {
				return err
			}
			queueDir, err := taskqueue.Open(cfg.TaskDir)
			if err != nil {
				return err
			}
			views, err := queueDir.List()
			if err != nil {
				return err
			}
			renderTaskTable(views, queueDir.Paused())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "failed",
		Short: "List failed task completions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.LoadControllerConfig(*configFlag)
			if err != nil {
				return err
			}
			queueDir, err := taskqueue.Open(cfg.TaskDir)
			if err != nil {
				return err
			}
			completions, err := queueDir.ListFailed()
			if err != nil {
				return err
			}
			renderFailedTable(completions)
			return nil
		},
	})
	return cmd
}

func renderTaskTable(views []taskqueue.TaskView, paused bool) {
	if paused {
		fmt.Println("queue is PAUSED; waiting tasks will not be claimed")
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Task ID", "Type", "State", "Input", "Output"})
	for _, v := range views {
		input := ""
		if v.Task.Input != nil {
			input = *v.Task.Input
		}
		t.AppendRow(table.Row{v.Task.ID, string(v.Task.Type), string(v.State), input, v.Task.Output})
	}
	t.Render()
}

func renderFailedTable(completions []taskqueue.Completion) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Task ID", "Completed At", "Code", "Message"})
	for _, c := range completions {
		code, message := "", ""
		if c.Error != nil {
			code, message = c.Error.Code, c.Error.Message
		}
		t.AppendRow(table.Row{c.TaskID, c.CompletedAt.Format("2006-01-02 15:04:05"), code, message})
	}
	t.Render()
}
