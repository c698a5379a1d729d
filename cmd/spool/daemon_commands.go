package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"spool/internal/ipc"
	"spool/internal/queue"
	"spool/internal/textutil"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				runningKind := statusError
				if status.Running {
					runningKind = statusOK
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", runningKind, "running: "+yesNo(status.Running), colorize))
				fmt.Fprintln(out, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", status.PID), colorize))
				fmt.Fprintln(out, renderStatusLine("Queue DB", statusInfo, status.QueueDBPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockPath, colorize))
				if status.LastError != "" {
					fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, status.LastError, colorize))
				}
				for _, dep := range status.Dependencies {
					kind := statusOK
					value := dep.Command
					if !dep.Available {
						kind = statusError
						if dep.Optional {
							kind = statusWarn
						}
						value = dep.Detail
					}
					fmt.Fprintln(out, renderStatusLine(dep.Name, kind, value, colorize))
				}

				rows := buildQueueStatsRows(status.QueueStats)
				if len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

// buildQueueStatsRows orders stats by lifecycle position rather than
// alphabetically so the table reads queued-to-terminal.
func buildQueueStatsRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	order := make(map[string]int, len(queue.AllStatuses()))
	for i, status := range queue.AllStatuses() {
		order[string(status)] = i
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, iok := order[names[i]]
		oj, jok := order[names[j]]
		if iok && jok {
			return oi < oj
		}
		if iok != jok {
			return iok
		}
		return names[i] < names[j]
	})
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{textutil.StatusLabel(name), fmt.Sprintf("%d", stats[name])})
	}
	return rows
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running spool daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				if resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
				}
				return nil
			})
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}
}
