// Command fieldsyncd is the background half of fieldsync. It owns the
// instance lock, drains the shared queue on a schedule and serves the CLI over
// a unix socket.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fieldsync/internal/config"
	"fieldsync/internal/daemonrun"
)

func newRootCommand() *cobra.Command {
	var configPath string
	var socketPath string
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:           "fieldsyncd",
		Short:         "Background sync daemon for the fieldsync order queue",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if socketPath != "" {
				cfg.Paths.SocketPath = socketPath
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&socketPath, "socket", "", "Override paths.socket_path")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Console log output with source locations")
	return cmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
