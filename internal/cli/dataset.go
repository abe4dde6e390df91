// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bodaay/stager/internal/catalog"
	"github.com/bodaay/stager/pkg/stager"
)

// readinessSample is the number of categories whose images are counted.
const readinessSample = 5

type categoryCount struct {
	Name   string `json:"name"`
	Images int    `json:"images"`
}

// readinessReport summarizes a staged dataset for Create ML training.
type readinessReport struct {
	Event      string          `json:"event"`
	Path       string          `json:"path"`
	Categories int             `json:"categories"`
	Sample     []categoryCount `json:"sample"`
}

func newDatasetCmd(a *app) *cobra.Command {
	var (
		root string
		urls []string
	)

	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Download and extract the Food-101 dataset",
		Long: `Downloads food-101.tar.gz (about 5GB), extracts it under the dataset
root, lists the food categories found in food-101/images and prints
what Create ML training needs next.

Nothing is downloaded when food-101/ already exists. A food-101.tar.gz
placed in the dataset root by hand is extracted instead of downloaded.

Example:
  stager dataset --root Food101_Training
  stager dataset --url s3://mirror/food-101.tar.gz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				root = a.cfg.DatasetRoot
			}
			if len(urls) == 0 {
				urls = a.cfg.DatasetURLs
			}
			target := catalog.DatasetTarget(root, urls)

			res, err := a.stage(cmd.Context(), catalog.Food101(), target)
			if err != nil || !res.Success {
				return errFailed
			}
			a.readiness(readinessOf(a, res))
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Directory food-101/ is extracted into (default from config)")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "Candidate archive URL, repeatable; replaces the default source")

	return cmd
}

func readinessOf(a *app, res stager.Result) readinessReport {
	r := readinessReport{Event: "readiness", Path: absPath(res.ResolvedPath), Categories: res.ItemCount}
	for i, name := range res.SampleNames {
		if i == readinessSample {
			break
		}
		n, _, err := stager.Inventory(a.fs, filepath.Join(res.ResolvedPath, name), 0)
		if err != nil {
			a.log.Warn("count category images", zap.String("category", name), zap.Error(err))
			continue
		}
		r.Sample = append(r.Sample, categoryCount{Name: name, Images: n})
	}
	return r
}

func (a *app) readiness(r readinessReport) {
	if a.ro.JSONOut {
		enc := json.NewEncoder(a.out)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(r)
		return
	}
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Create ML training readiness:")
	fmt.Fprintf(a.out, "   Dataset path: %s\n", r.Path)
	fmt.Fprintf(a.out, "   Categories: %d\n", r.Categories)
	fmt.Fprintln(a.out, "   Space needed: ~2-4 GB for training")
	for _, c := range r.Sample {
		fmt.Fprintf(a.out, "   %s: %d images\n", c.Name, c.Images)
	}
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Ready for Create ML training!")
	fmt.Fprintln(a.out, "Estimated training time on M1: 2-4 hours")
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Next steps:")
	fmt.Fprintln(a.out, "1. Open Create ML")
	fmt.Fprintln(a.out, "2. Choose Image Classification")
	fmt.Fprintf(a.out, "3. Select dataset: %s\n", r.Path)
	fmt.Fprintln(a.out, "4. Start training (2-4 hours on M1)")
	fmt.Fprintln(a.out, "5. Export .mlmodel to MacroTrackr project")
}
