package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"amphigory/internal/config"
	"amphigory/internal/taskqueue"
)

// newStatusCommand reports drive and queue state against a running
// controller: drive status is proxied over the persistent link via the
// controller's HTTP surface, queue depth and pause state come straight
// from the shared task directory.
func newStatusCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show drive and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.LoadControllerConfig(*configFlag)
			if err != nil {
				return err
			}

			queueDir, err := taskqueue.Open(cfg.TaskDir)
			if err != nil {
				return err
			}
			depth, err := queueDir.QueueDepth()
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Field", "Value"})
			t.AppendRow(table.Row{"queue_depth", depth})
			t.AppendRow(table.Row{"paused", queueDir.Paused()})

			status, err := fetchDriveStatus(cfg.APIBind)
			if err != nil {
				t.AppendRow(table.Row{"drive", fmt.Sprintf("unavailable (%v)", err)})
			} else {
				keys := make([]string, 0, len(status))
				for k := range status {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					t.AppendRow(table.Row{k, status[k]})
				}
			}
			t.Render()
			return nil
		},
	}
}

// fetchDriveStatus asks the running controller for the daemon's drive
// state. A bind address without a host ("":8080") is reached via
// loopback.
func fetchDriveStatus(apiBind string) (map[string]any, error) {
	addr := apiBind
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/drives/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("controller returned %s", resp.Status)
	}
	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return status, nil
}
