// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bodaay/stager/internal/catalog"
	"github.com/bodaay/stager/pkg/stager"
)

func newFetchCmd(a *app) *cobra.Command {
	t := &stager.Target{}

	cmd := &cobra.Command{
		Use:   "fetch URL...",
		Short: "Stage any file or tar.gz archive from candidate URLs",
		Long: `Fetches DEST from the first candidate URL that succeeds, trying each one
up to --retries times. With --archive the download is unpacked into
--extract-dir (default DEST) and removed afterwards.

URLs may be http(s) or blob URLs: s3://bucket/key, gs://bucket/key,
file:///path/to/file.

Example:
  stager fetch https://a.example.com/m.mlmodel https://b.example.com/m.mlmodel --dest models/m.mlmodel --retries 3
  stager fetch https://example.com/data.tar.gz --archive --dest data --layout images`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if t.Dest == "" {
				return usagef("missing --dest")
			}
			target := *t
			target.URLs = args
			if target.Name == "" {
				target.Name = filepath.Base(target.Dest)
			}

			res, err := a.stage(cmd.Context(), catalog.Entry{}, target)
			if err != nil || !res.Success {
				return errFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&t.Dest, "dest", "", "Path that exists once the target is staged (required)")
	cmd.Flags().StringVar(&t.Name, "name", "", "Label used in output (default: base name of --dest)")
	cmd.Flags().BoolVar(&t.Archive, "archive", false, "Treat the download as a tar.gz archive to extract")
	cmd.Flags().StringVar(&t.ExtractDir, "extract-dir", "", "Directory the archive is unpacked into (default: --dest)")
	cmd.Flags().StringVar(&t.ArchivePath, "archive-path", "", "Where the raw archive is kept during extraction")
	cmd.Flags().StringVar(&t.Layout, "layout", "", "Sub-path expected under --dest, e.g. images")
	cmd.Flags().IntVar(&t.RetryLimit, "retries", 1, "Attempts per URL before trying the next one")

	return cmd
}
