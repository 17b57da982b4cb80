package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/raiser-uploader/internal/server"
	"github.com/withObsrvr/raiser-uploader/internal/watcher"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control surface and pick up pending jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			cfg := opts.cfg
			if addr != "" {
				cfg.Server.Address = addr
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Upload.AutoStart {
				started, err := a.ctrl.AutoStart(ctx)
				if err != nil {
					slog.Error("auto-start failed", "error", err)
				} else if started {
					slog.Info("picked up pending upload job", "job_id", a.ctrl.Snapshot().ID)
				}
			}

			srv := server.New(ctx, a.ctrl, a.store, a.gatherer)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx, cfg.Server.Address)
			})
			if cfg.Upload.AutoStart {
				g.Go(func() error {
					return watcher.New(a.ctrl, cfg.Upload.PollInterval).Run(gctx)
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				a.ctrl.Wait()
				return nil
			})

			err = g.Wait()
			slog.Info("raiser uploader stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides SERVER_ADDRESS)")
	return cmd
}
