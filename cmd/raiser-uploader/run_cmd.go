package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/raiser-uploader/internal/jobstore"
	"github.com/withObsrvr/raiser-uploader/internal/uploader"
)

type runOutput struct {
	Command string       `json:"command"`
	Started bool         `json:"started"`
	Job     uploader.Job `json:"job"`
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pending upload job in the foreground",
		Long: "Run resumes an interrupted job or starts the one requested by trigger, " +
			"then waits for it to finish. With --force a fresh job starts regardless of the trigger.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			started := true
			if force {
				err = a.ctrl.Start(ctx)
			} else {
				started, err = a.ctrl.AutoStart(ctx)
			}
			if err != nil {
				return fmt.Errorf("start upload: %w", err)
			}
			a.ctrl.Wait()

			job := a.ctrl.Snapshot()
			if err := writeJSON(runOutput{Command: "run", Started: started, Job: job}); err != nil {
				return err
			}
			if job.Status == jobstore.StatusFailed {
				return errors.New(job.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Start a fresh job even if none is pending")
	return cmd
}
