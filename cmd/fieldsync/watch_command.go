package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fieldsync/internal/logs"
	"fieldsync/internal/logstream"
	"fieldsync/internal/notifications"
)

const watchWait = 25 * time.Second

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var since uint64
	var limit int
	var once bool
	var useAPI bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream messages posted by the background sync",
		Long: `Watch follows the daemon message hub. When paths.api_bind is set the HTTP
API is used, otherwise the unix socket. --api refuses the socket fallback.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			apiClient, err := logs.NewMessageClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
			if err != nil {
				return err
			}
			if useAPI && apiClient == nil {
				return fmt.Errorf("%w: paths.api_bind is not set", logs.ErrAPIUnavailable)
			}

			opts := logstream.Options{Since: since, Limit: limit, Follow: !once, RequireAPI: useAPI}
			source := &logstream.IPCSource{Dial: ctx.dialClient, Wait: watchWait}
			defer source.Close()
			_, err = logstream.Stream(cmd.Context(), apiClient, source, opts, messagePrinter(cmd, ctx))
			return err
		},
	}
	cmd.Flags().Uint64Var(&since, "since", 0, "Only show messages after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum messages per poll")
	cmd.Flags().BoolVar(&once, "once", false, "Print buffered messages and exit")
	cmd.Flags().BoolVar(&useAPI, "api", false, "Require the daemon HTTP API")
	return cmd
}

func messagePrinter(cmd *cobra.Command, ctx *commandContext) func(notifications.Message) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	encoder := json.NewEncoder(out)
	return func(msg notifications.Message) error {
		if ctx.jsonOutput() {
			return encoder.Encode(msg)
		}
		stamp := msg.Timestamp.Local().Format("15:04:05")
		_, err := fmt.Fprintf(out, "%s %s\n", stamp, renderFeedback(msg, colorize))
		return err
	}
}
