package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fieldsync/internal/api"
	"fieldsync/internal/queue"
	"fieldsync/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued submissions",
		Long: `Queue commands talk to fieldsyncd when it is running and open the queue
database directly otherwise.`,
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRelocateCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				renderQueueStats(cmd.OutOrStdout(), stats, false)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued submissions, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				items, err := access.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if items == nil {
						items = []api.Submission{}
					}
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ID,
						item.Status,
						item.Client,
						item.Total,
						strconv.Itoa(item.RetryCount),
						formatLocationAge(item),
						item.ErrorMessage,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Status", "Client", "Total", "Retries", "Location", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show submissions with these statuses")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				item, err := access.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("submission %s not found", args[0])
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, item)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Submission "+item.ID, colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Status", queueStatusKind(item.Status), item.Status, colorize))
				fmt.Fprintln(out, renderStatusLine("Client", statusInfo, item.Client, colorize))
				if item.Email != "" {
					fmt.Fprintln(out, renderStatusLine("Email", statusInfo, item.Email, colorize))
				}
				fmt.Fprintln(out, renderStatusLine("Total", statusInfo, fmt.Sprintf("%s (%d products)", item.Total, item.Products), colorize))
				photoKind := statusOK
				if !item.PhotosReady {
					photoKind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Photos", photoKind, strconv.Itoa(item.Photos), colorize))
				locKind := statusOK
				if !item.LocationFresh {
					locKind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Location", locKind, formatLocationAge(*item), colorize))
				fmt.Fprintln(out, renderStatusLine("Admin", statusInfo, yesNo(item.IsAdmin), colorize))
				fmt.Fprintln(out, renderStatusLine("Created", statusInfo, item.CreatedAt, colorize))
				if item.LastAttemptAt != "" {
					fmt.Fprintln(out, renderStatusLine("Last attempt", statusInfo, item.LastAttemptAt, colorize))
				}
				fmt.Fprintln(out, renderStatusLine("Retries", statusInfo, strconv.Itoa(item.RetryCount), colorize))
				if item.ErrorMessage != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, item.ErrorMessage, colorize))
				}
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Return failed submissions to pending",
		Long:  "Retry resets the retry counter of the given submissions, or of every failed one when no id is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				updated, err := access.Retry(cmd.Context(), args)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int{"updated": updated})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retrying %d submissions\n", updated)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id...>",
		Short: "Discard specific submissions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				removed, err := access.Remove(cmd.Context(), args)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d submissions\n", removed)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every queued submission",
		Long: `Clear removes every queued submission. When any submission has already
been attempted, clear asks for confirmation unless --yes is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				out := cmd.OutOrStdout()
				result, err := access.Clear(cmd.Context(), yes)
				if err != nil {
					return err
				}
				if result.RequiresConfirmation {
					if !isInteractive(cmd.InOrStdin()) || ctx.jsonOutput() {
						return errors.New(api.ErrConfirmationRequired.Error() + "; rerun with --yes")
					}
					if !confirm(cmd.InOrStdin(), out, "Some submissions were already attempted. Discard them all? [y/N] ") {
						fmt.Fprintln(out, "Queue left untouched")
						return nil
					}
					if result, err = access.Clear(cmd.Context(), true); err != nil {
						return err
					}
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				fmt.Fprintf(out, "Cleared %d submissions\n", result.Removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Clear without asking for confirmation")
	return cmd
}

func newQueueRelocateCommand(ctx *commandContext) *cobra.Command {
	var lat, lng float64
	var timestamp int64

	cmd := &cobra.Command{
		Use:   "relocate <id>",
		Short: "Attach a new location reading to a submission",
		Long: `Relocate replaces the location of a queued submission. A fresh reading
returns a parked submission to pending; a reading that is already too old
leaves it parked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") {
				return errors.New("--lat and --lng are required")
			}
			ts := timestamp
			if !cmd.Flags().Changed("timestamp") {
				ts = time.Now().UnixMilli()
			}
			loc := queue.Location{Lat: lat, Lng: lng, Timestamp: &ts}
			return ctx.withQueue(func(access queueaccess.Access) error {
				item, stale, err := access.UpdateLocation(cmd.Context(), args[0], loc)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"item": item, "stale": stale})
				}
				out := cmd.OutOrStdout()
				if stale {
					fmt.Fprintf(out, "Location for %s is still stale; submission stays parked\n", item.ID)
					return nil
				}
				fmt.Fprintf(out, "Location updated; %s is %s\n", item.ID, item.Status)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Reading time in epoch milliseconds (defaults to now)")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue database diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				health, err := access.Health(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, health)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				check := func(label string, ok bool, detail string) {
					kind := statusOK
					if !ok {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(label, kind, detail, colorize))
				}
				for _, line := range renderSectionHeader("Queue Database ("+access.Source()+")", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Path", statusInfo, health.DBPath, colorize))
				check("Exists", health.DatabaseExists, "")
				check("Readable", health.DatabaseReadable, "")
				check("Table", health.TableExists, fmt.Sprintf("schema v%d", health.SchemaVersion))
				check("Columns", len(health.MissingColumns) == 0, strings.Join(health.MissingColumns, ", "))
				check("Integrity", health.IntegrityCheck, "")
				fmt.Fprintln(out, renderStatusLine("Journal mode", statusInfo, health.JournalMode, colorize))
				fmt.Fprintln(out, renderStatusLine("Submissions", statusInfo, strconv.Itoa(health.TotalItems), colorize))
				if health.Error != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusWarn, health.Error, colorize))
				}
				return nil
			})
		},
	}
}

func formatLocationAge(item api.Submission) string {
	if item.IsAdmin && item.LocationAgeSeconds == nil {
		return "admin"
	}
	if item.LocationAgeSeconds == nil {
		return "missing"
	}
	age := (time.Duration(*item.LocationAgeSeconds) * time.Second).String()
	if !item.LocationFresh {
		return age + " (stale)"
	}
	return age
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
