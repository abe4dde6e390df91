// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bodaay/stager/internal/catalog"
	"github.com/bodaay/stager/internal/guide"
)

func newGuideCmd(a *app) *cobra.Command {
	var (
		dir    string
		html   bool
		stdout bool
	)

	cmd := &cobra.Command{
		Use:   "guide",
		Short: "Write the Food-101 model sources guide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.ModelsDir
			}
			data := guide.Data{Models: modelStatus(a, dir)}

			if stdout {
				if html {
					return guide.HTML(a.out, data)
				}
				return guide.Render(a.out, data)
			}
			paths, err := guide.Write(a.fs, dir, data, html)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintf(a.out, "Created %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "models-dir", "", "Directory the guide is written into (default from config)")
	cmd.Flags().BoolVar(&html, "html", false, "Also render the guide as HTML")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Print the guide instead of writing it")

	return cmd
}

// modelStatus reports which catalog models are already in dir.
func modelStatus(a *app, dir string) []guide.Model {
	var out []guide.Model
	for _, e := range catalog.Models() {
		p := e.Target(dir).Dest
		_, err := a.fs.Stat(p)
		out = append(out, guide.Model{Name: e.Name, Description: e.Description, Path: p, Staged: err == nil})
	}
	return out
}
