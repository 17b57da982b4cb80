package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/raiser-uploader/internal/config"
	"github.com/withObsrvr/raiser-uploader/internal/logging"
	"github.com/withObsrvr/raiser-uploader/internal/report"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

type rootOptions struct {
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "raiser-uploader",
		Short:        "Batch upload of answered forms into the KTech raiser table",
		Version:      Version + " (" + GitSHA + ")",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging)
			report.Version, report.GitSHA = Version, GitSHA
			opts.cfg = cfg

			slog.Debug("configuration loaded",
				"jobstore", cfg.JobStore.Backend,
				"batch_size", cfg.Upload.BatchSize,
				"batch_delay", cfg.Upload.BatchDelay.String(),
				"report_enabled", cfg.Report.Enabled,
			)
			return nil
		},
	}

	cmd.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newTriggerCmd(opts),
		newStatusCmd(opts),
		newCancelCmd(opts),
		newResetCmd(opts),
		newReportsCmd(opts),
	)
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)

		select {
		case sig := <-ch:
			slog.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
