package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/raiser-uploader/internal/jobstore"
)

type jobOutput struct {
	Command    string               `json:"command"`
	Descriptor *jobstore.Descriptor `json:"descriptor"`
}

func newTriggerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Request an upload run on the next start",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJobStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			d, err := jobstore.Trigger(cmd.Context(), store)
			if err != nil {
				return err
			}
			return writeJSON(jobOutput{Command: "trigger", Descriptor: d})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the stored job descriptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJobStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			d, err := store.Load(cmd.Context())
			if err != nil && !errors.Is(err, jobstore.ErrNoJob) {
				return err
			}
			return writeJSON(jobOutput{Command: "status", Descriptor: d})
		},
	}
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Withdraw a pending or interrupted upload request",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJobStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := jobstore.Untrigger(cmd.Context(), store); err != nil {
				return err
			}
			d, err := store.Load(cmd.Context())
			if err != nil && !errors.Is(err, jobstore.ErrNoJob) {
				return err
			}
			return writeJSON(jobOutput{Command: "cancel", Descriptor: d})
		},
	}
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the stored job descriptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJobStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			d, err := store.Load(cmd.Context())
			if errors.Is(err, jobstore.ErrNoJob) {
				return writeJSON(jobOutput{Command: "reset"})
			}
			if err != nil {
				return err
			}
			if d.Resumable() && !force {
				return fmt.Errorf("job %s is resumable at cursor %s; use --force to discard it", d.JobID, d.Cursor)
			}

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			return writeJSON(jobOutput{Command: "reset"})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "discard a resumable job")
	return cmd
}
