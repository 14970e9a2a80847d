package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"fieldsync/internal/connectivity"
	"fieldsync/internal/logging"
	"fieldsync/internal/notifications"
	"fieldsync/internal/queue"
	"fieldsync/internal/submit"
	"fieldsync/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drain the queue in the foreground until interrupted",
		Long: `Run keeps a foreground sync loop alive. It processes the queue at start,
whenever connectivity returns and on every poll interval, printing the
outcome of each submission.`,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			probe := connectivity.ProbeFromConfig(cfg)
			fg := workflow.NewForeground(engine, submit.NewClient(submit.ConfigFrom(cfg), logger), probe, workflow.PolicyFrom(cfg), logger)
			fg.SetPollInterval(cfg.PollInterval())

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var outMu sync.Mutex
			emit := func(line string) {
				outMu.Lock()
				defer outMu.Unlock()
				fmt.Fprintln(out, line)
			}
			fg.OnFeedback(func(msg notifications.Message) {
				emit(renderFeedback(msg, colorize))
			})
			unsubscribe := engine.Subscribe(func(evt queue.Event) {
				if verbose {
					emit(renderStatusLine("queue", statusInfo, describeEvent(evt), colorize))
				}
			})
			defer unsubscribe()

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			watcher := connectivity.NewWatcher(probe, cfg.ConnectivityInterval(), func(context.Context) {
				emit(renderStatusLine("network", statusOK, "connectivity restored", colorize))
				fg.Trigger()
			}, logger)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				watcher.Run(runCtx)
			}()

			logger.Info("foreground sync started",
				logging.EventType("foreground_started"),
				logging.Duration("poll_interval", cfg.PollInterval()),
			)
			fg.Trigger()
			err = fg.Run(runCtx)
			cancel()
			wg.Wait()
			return err
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Also print queue change notices")
	return cmd
}

func describeEvent(evt queue.Event) string {
	switch {
	case evt.Kind == queue.EventReload:
		return "reloaded"
	case evt.SubmissionID == "":
		return string(evt.Kind)
	case evt.Status != "":
		return fmt.Sprintf("%s %s (%s)", evt.Kind, evt.SubmissionID, evt.Status)
	default:
		return fmt.Sprintf("%s %s", evt.Kind, evt.SubmissionID)
	}
}
