package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/raiser-uploader/internal/storage"
)

type reportEntry struct {
	URI      string    `json:"uri"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type reportsOutput struct {
	Command string        `json:"command"`
	Reports []reportEntry `json:"reports"`
}

func newReportsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List published run reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg.Report
			store, err := storage.NewAtomicStore(cmd.Context(), storage.StorageConfig{
				Backend:    cfg.Backend,
				LocalDir:   cfg.LocalDir,
				Bucket:     cfg.Bucket,
				S3Endpoint: cfg.S3Endpoint,
				S3Region:   cfg.S3Region,
				Prefix:     cfg.Prefix,
			})
			if err != nil {
				return err
			}
			defer store.Close()

			infos, err := storage.ListReports(cmd.Context(), store, cfg.Prefix)
			if err != nil {
				return err
			}

			out := reportsOutput{Command: "reports", Reports: []reportEntry{}}
			for _, info := range infos {
				out.Reports = append(out.Reports, reportEntry{
					URI:      store.URI(info.Key),
					Size:     info.Size,
					Modified: info.ModTime,
				})
			}
			return writeJSON(out)
		},
	}
}
