package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/cashflow-tracker/internal/gcs"
	"github.com/spf13/cobra"
)

// openReader is replaced in tests.
var openReader = func(ctx context.Context) (gcs.ObjectReader, func() error, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

func downloadCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "download <gs://bucket/object>",
		Short: "Fetch the CSV produced by an export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := args[0]
			if _, _, err := gcs.ParseURI(uri); err != nil {
				return err
			}
			if out == "" {
				out = gcs.FilenameFromURI(uri)
			}

			reader, closeFn, err := openReader(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			data, err := reader.ReadObject(cmd.Context(), uri)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d bytes to %s\n", len(data), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output file (default: the object's file name)")
	return cmd
}
