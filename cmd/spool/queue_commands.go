package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spool/internal/ipc"
	"spool/internal/textutil"
)

const displayTimeFormat = "2006-01-02 15:04:05"

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage download jobs",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List download jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList(listStatuses)
				if err != nil {
					return err
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Type", "Status", "Progress", "Created"},
					buildQueueListRows(resp.Jobs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by job status (repeatable)")
	return cmd
}

func buildQueueListRows(jobs []ipc.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		title := job.Title
		if title == "" {
			title = job.URL
		}
		rows = append(rows, []string{
			shortID(job.ID),
			truncate(title, 48),
			job.Kind,
			textutil.StatusLabel(job.Status),
			fmt.Sprintf("%.0f%%", job.Progress.Percent),
			formatCreated(job.CreatedAt),
		})
	}
	return rows
}

// shortID keeps tables narrow; every command accepts the prefix-free full id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}

func formatCreated(value string) string {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format(displayTimeFormat)
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <jobID>",
		Short: "Show details for one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveJobID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := client.QueueDescribe(id)
				if err != nil {
					return err
				}
				printJobDetails(cmd, resp.Job)
				return nil
			})
		},
	}
}

func printJobDetails(cmd *cobra.Command, job ipc.Job) {
	out := cmd.OutOrStdout()
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(out, "%-14s %s\n", label+":", value)
		}
	}
	line("ID", job.ID)
	line("URL", job.URL)
	line("Type", job.Kind)
	line("Status", textutil.StatusLabel(job.Status))
	line("Title", job.Title)
	line("Quality", job.Quality)
	line("Format", job.AudioFormat)
	if job.DurationSec > 0 {
		line("Duration", textutil.FormatDuration(int64(job.DurationSec)))
	}
	if job.StartSec > 0 || job.EndSec > 0 {
		line("Clip", fmt.Sprintf("%.0fs - %.0fs", job.StartSec, job.EndSec))
	}
	progress := fmt.Sprintf("%.1f%%", job.Progress.Percent)
	if job.Progress.Stage != "" {
		progress += " (" + job.Progress.Stage + ")"
	}
	line("Progress", progress)
	if job.Progress.TotalBytes > 0 {
		line("Size", textutil.FormatByteSize(job.Progress.TotalBytes))
	}
	line("Filename", job.Filename)
	if job.ErrorCode != "" {
		line("Error", fmt.Sprintf("%s: %s", job.ErrorCode, job.ErrorMessage))
	}
	line("Created", job.CreatedAt)
	line("Completed", job.CompletedAt)
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <jobID>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveJobID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := client.QueueCancel(id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch resp.Job.Status {
				case "cancelled":
					fmt.Fprintf(out, "Job %s cancelled\n", shortID(id))
				case "completed", "error":
					fmt.Fprintf(out, "Job %s already finished (%s)\n", shortID(id), resp.Job.Status)
				default:
					fmt.Fprintf(out, "Cancellation requested for job %s; the runner will stop shortly\n", shortID(id))
				}
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [jobID...]",
		Short: "Retry failed jobs",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				ids := make([]string, 0, len(args))
				for _, arg := range args {
					id, err := resolveJobID(client, arg)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}
				resp, err := client.QueueRetry(ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed jobs\n", resp.Updated)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueClear(clearAll)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d jobs\n", resp.Removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every job, including queued and active ones")
	return cmd
}

// resolveJobID expands a unique id prefix to the full job id so users can
// paste the shortened ids shown by queue list.
func resolveJobID(client *ipc.Client, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("job id is required")
	}
	resp, err := client.QueueList(nil)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, job := range resp.Jobs {
		if job.ID == arg {
			return arg, nil
		}
		if strings.HasPrefix(job.ID, arg) {
			matches = append(matches, job.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no job matches id %q", arg)
	default:
		return "", fmt.Errorf("id %q is ambiguous (%d matches); use more characters", arg, len(matches))
	}
}
