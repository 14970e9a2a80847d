package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"fieldsync/internal/api"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/ipc"
	"fieldsync/internal/notifications"
	"fieldsync/internal/preflight"
	"fieldsync/internal/queue"
	"fieldsync/internal/queueaccess"
	"fieldsync/internal/submit"
	"fieldsync/internal/workflow"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var local bool
	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Drain the queue now",
		Long: `Process asks fieldsyncd to run a background pass and prints its summary.

With --local the pass runs in this process instead, using the foreground
retry loop. Use it when the daemon is not running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				return runLocalPass(cmd, ctx)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProcessQueue(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Offline {
					fmt.Fprintln(out, "Device is offline; queue left untouched")
					return nil
				}
				printSummary(out, resp.Results)
				return nil
			})
		},
	}
	processCmd.Flags().BoolVar(&local, "local", false, "Run the pass in this process instead of the daemon")

	skipCmd := &cobra.Command{
		Use:   "skip-wait",
		Short: "Interrupt the daemon's retry backoff and resume immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				callCtx, cancel := queueaccess.WithCallTimeout(cmd.Context())
				defer cancel()
				resp, err := client.SkipWaiting(callCtx)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				if resp.Skipped {
					fmt.Fprintln(cmd.OutOrStdout(), "Backoff interrupted; retrying now")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "No backoff in progress; pass requested")
				}
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client, dialErr := ctx.dialClient()
			if dialErr == nil {
				defer client.Close()
				callCtx, cancel := queueaccess.WithCallTimeout(cmd.Context())
				defer cancel()
				status, err := client.Status(callCtx)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}
				renderDaemonStatus(out, status, shouldColorize(out))
				return nil
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var stats api.QueueStats
			if err := ctx.withQueue(func(access queueaccess.Access) error {
				var statsErr error
				stats, statsErr = access.Stats(cmd.Context())
				return statsErr
			}); err != nil {
				return err
			}
			checks := preflight.RunAll(cmd.Context(), cfg)
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{
					"running": false,
					"queue":   stats,
					"checks":  checks,
				})
			}
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("fieldsyncd", statusWarn, "not running", colorize))
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			fmt.Fprintln(out)
			renderQueueStats(out, stats, colorize)
			return nil
		},
	}

	return []*cobra.Command{newStartCommand(ctx), newStopCommand(ctx), newRestartCommand(ctx), processCmd, skipCmd, statusCmd}
}

func runLocalPass(cmd *cobra.Command, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	engine, err := ctx.openEngine()
	if err != nil {
		return err
	}
	defer engine.Store().Close()

	logger := ctx.log()
	fg := workflow.NewForeground(engine, submit.NewClient(submit.ConfigFrom(cfg), logger), connectivity.ProbeFromConfig(cfg), workflow.PolicyFrom(cfg), logger)
	out := cmd.OutOrStdout()
	if !ctx.jsonOutput() {
		colorize := shouldColorize(out)
		fg.OnFeedback(func(msg notifications.Message) {
			fmt.Fprintln(out, renderFeedback(msg, colorize))
		})
	}

	report, err := fg.ProcessQueue(cmd.Context())
	if err != nil {
		return err
	}
	if ctx.jsonOutput() {
		return writeJSON(cmd, report)
	}
	if !report.Ran {
		fmt.Fprintln(out, "Device is offline; queue left untouched")
		return nil
	}
	printSummary(out, report.Summary())
	return nil
}

func printSummary(w io.Writer, s notifications.Summary) {
	fmt.Fprintf(w, "Processed %d: %d delivered, %d failed, %d need a fresh location\n",
		s.Processed, s.Succeeded, s.Failed, s.Stale)
}

func renderFeedback(msg notifications.Message, colorize bool) string {
	switch msg.Type {
	case notifications.TypeSubmissionSuccess:
		detail := "delivered"
		if msg.Duplicate {
			detail = "already received by the server"
		}
		return renderStatusLine(msg.SubmissionID, statusOK, detail, colorize)
	case notifications.TypeSubmissionFailed:
		if msg.Retrying {
			return renderStatusLine(msg.SubmissionID, statusWarn, "will retry: "+msg.Error, colorize)
		}
		return renderStatusLine(msg.SubmissionID, statusError, msg.Error, colorize)
	case notifications.TypeLocationStale:
		return renderStatusLine(msg.SubmissionID, statusWarn, queue.StaleLocationMessage, colorize)
	case notifications.TypeQueueProcessed:
		if msg.Results != nil {
			return renderStatusLine("pass", statusInfo, fmt.Sprintf("%d processed, %d delivered, %d failed, %d stale",
				msg.Results.Processed, msg.Results.Succeeded, msg.Results.Failed, msg.Results.Stale), colorize)
		}
		return renderStatusLine("pass", statusInfo, "complete", colorize)
	default:
		return renderStatusLine(string(msg.Type), statusInfo, msg.Error, colorize)
	}
}

func renderDaemonStatus(w io.Writer, status *ipc.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(w, line)
	}
	runKind := statusOK
	runText := fmt.Sprintf("running (pid %d)", status.PID)
	if !status.Running {
		runKind, runText = statusWarn, "stopped"
	}
	fmt.Fprintln(w, renderStatusLine("fieldsyncd", runKind, runText, colorize))
	netKind, netText := statusOK, "online"
	if !status.Online {
		netKind, netText = statusWarn, "offline"
	}
	fmt.Fprintln(w, renderStatusLine("Network", netKind, netText, colorize))
	fmt.Fprintln(w, renderStatusLine("Sync tag", statusInfo, status.Tag, colorize))
	fmt.Fprintln(w, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))
	if status.LastPass != nil {
		kind := statusOK
		detail := fmt.Sprintf("%s: %d processed, %d delivered, %d failed, %d stale", status.LastPass.FinishedAt,
			status.LastPass.Processed, status.LastPass.Succeeded, status.LastPass.Failed, status.LastPass.Stale)
		if status.LastPass.Error != "" {
			kind, detail = statusWarn, status.LastPass.FinishedAt+": "+status.LastPass.Error
		}
		fmt.Fprintln(w, renderStatusLine("Last pass", kind, detail, colorize))
	}
	if status.NextWakeAt != "" {
		fmt.Fprintln(w, renderStatusLine("Next pass", statusInfo, status.NextWakeAt, colorize))
	}
	fmt.Fprintln(w)
	renderQueueStats(w, status.Queue, colorize)
}

func renderQueueStats(w io.Writer, stats api.QueueStats, colorize bool) {
	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(w, line)
	}
	if stats.Total == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return
	}
	rows := make([][]string, 0, len(stats.Counts))
	for _, status := range queue.AllStatuses() {
		if count := stats.Counts[string(status)]; count > 0 {
			rows = append(rows, []string{string(status), strconv.Itoa(count)})
		}
	}
	rows = append(rows, []string{"total", strconv.Itoa(stats.Total)})
	fmt.Fprintln(w, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	if stats.OldestAt != "" {
		fmt.Fprintf(w, "Oldest submission: %s (%s storage)\n", stats.OldestAt, stats.Storage)
	}
}
