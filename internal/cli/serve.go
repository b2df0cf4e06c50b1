package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func getCmdServe(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()

			if err := gs.app.EnableServer(); err != nil {
				return err
			}
			if err := gs.app.EnableScheduler(); err != nil {
				return err
			}
			if err := gs.app.Start(cmd.Context()); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			select {
			case sig := <-sigCh:
				gs.log.WithField("signal", sig.String()).Info("shutting down")
			case <-cmd.Context().Done():
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return gs.app.Stop(stopCtx)
		},
	}
}
