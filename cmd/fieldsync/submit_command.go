package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fieldsync/internal/connectivity"
	"fieldsync/internal/logging"
	"fieldsync/internal/mutation"
	"fieldsync/internal/queue"
	"fieldsync/internal/services"
	"fieldsync/internal/submit"
)

type submitOutput struct {
	ID           string `json:"id"`
	Delivered    bool   `json:"delivered"`
	Duplicate    bool   `json:"duplicate"`
	Queued       bool   `json:"queued"`
	Status       string `json:"status,omitempty"`
	Attempts     int    `json:"attempts"`
	DaemonPoked  bool   `json:"daemonNotified"`
	ErrorMessage string `json:"error,omitempty"`
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var filePath string
	var orderID string
	var isAdmin bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an order, queueing it when it cannot be delivered now",
		Long: `Submit reads an order as JSON from --file or stdin.

The order is delivered immediately when the device is online, photos are
uploaded and the location is fresh. Otherwise it is saved to the local queue
and a running fieldsyncd is asked to drain it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), filePath)
			if err != nil {
				return err
			}
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
			client := submit.NewClient(submit.ConfigFrom(cfg), logger)
			m := mutation.New(cfg, engine, client, connectivity.ProbeFromConfig(cfg), logger)

			runCtx := services.WithRequestID(cmd.Context(), uuid.NewString())
			var poked bool
			m.OnQueued(func() {
				poked = ctx.notifyDaemon(runCtx)
			})

			result, err := m.Submit(runCtx, mutation.Order{ID: orderID, Payload: payload, IsAdmin: isAdmin})
			if err != nil {
				if errors.Is(err, services.ErrValidation) {
					return fmt.Errorf("order is invalid: %w", err)
				}
				return err
			}
			if result.Queued {
				logger.Info("order queued",
					logging.EventType("order_queued"),
					logging.String("submission_id", result.ID),
					logging.Bool("daemon_notified", poked),
				)
			}

			out := submitOutput{
				ID:          result.ID,
				Delivered:   result.Delivered,
				Duplicate:   result.Duplicate,
				Queued:      result.Queued,
				Attempts:    result.Attempts,
				DaemonPoked: poked,
			}
			if result.Record != nil {
				out.Status = string(result.Record.Status)
			}
			if result.LastError != nil {
				out.ErrorMessage = result.LastError.Error()
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, out)
			}
			printSubmitResult(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Read the order from this file instead of stdin")
	cmd.Flags().StringVar(&orderID, "id", "", "Submission id (generated when empty)")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "Submit as an admin, bypassing the location freshness check")
	return cmd
}

func readPayload(stdin io.Reader, path string) (queue.Payload, error) {
	var reader io.Reader = stdin
	if path = strings.TrimSpace(path); path != "" && path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return queue.Payload{}, fmt.Errorf("open order: %w", err)
		}
		defer file.Close()
		reader = file
	}
	var payload queue.Payload
	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return queue.Payload{}, fmt.Errorf("decode order: %w", err)
	}
	return payload, nil
}

func printSubmitResult(w io.Writer, out submitOutput) {
	switch {
	case out.Delivered && out.Duplicate:
		fmt.Fprintf(w, "Order %s was already received by the server\n", out.ID)
	case out.Delivered:
		fmt.Fprintf(w, "Order %s delivered\n", out.ID)
	case out.Queued:
		fmt.Fprintf(w, "Order %s saved to the queue (%s)\n", out.ID, out.Status)
		if out.ErrorMessage != "" {
			fmt.Fprintf(w, "Last attempt: %s\n", out.ErrorMessage)
		}
		if out.Status == string(queue.StatusLocationStale) {
			fmt.Fprintf(w, "Refresh the location with: fieldsync queue relocate %s --lat <lat> --lng <lng>\n", out.ID)
		} else if out.DaemonPoked {
			fmt.Fprintln(w, "fieldsyncd will deliver it in the background")
		} else {
			fmt.Fprintln(w, "Run 'fieldsync process --local' or start fieldsyncd to deliver it")
		}
	}
}
