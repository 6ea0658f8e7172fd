package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hotmic/internal/bootstrap"
	"hotmic/internal/daemon"
)

func newRunCmd() *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the session controller with the console, directive link and control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := bootstrap.Options{ConfigPath: configPath, Out: cmd.OutOrStdout()}
			if !headless {
				opts.In = cmd.InOrStdin()
			}
			services, err := bootstrap.Build(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return daemon.NewApp(services).Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "do not read commands from stdin")
	return cmd
}
