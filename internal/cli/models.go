// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bodaay/stager/internal/catalog"
	"github.com/bodaay/stager/internal/guide"
)

func newModelsCmd(a *app) *cobra.Command {
	var (
		dir  string
		only []string
		urls []string
		html bool
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Download pre-trained Core ML models and write the model sources guide",
		Long: `Downloads each catalog model into the models directory, trying every
mirror in turn, then writes ` + guide.FileName + ` with manual
alternatives for anything that could not be fetched.

Example:
  stager models --models-dir MacroTrackr/Models
  stager models --only ResNet50
  stager models --url ResNet50=https://mirror.example.com/ResNet50.mlmodel`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.ModelsDir
			}
			entries, err := selectModels(only)
			if err != nil {
				return err
			}
			if entries, err = overrideURLs(entries, urls); err != nil {
				return err
			}

			var (
				status []guide.Model
				staged []string
			)
			for _, e := range entries {
				t := e.Target(dir)
				res, err := a.stage(cmd.Context(), e, t)
				ok := err == nil && res.Success
				if ok {
					staged = append(staged, e.Name)
				}
				status = append(status, guide.Model{Name: e.Name, Description: e.Description, Path: t.Dest, Staged: ok})
			}

			paths, gerr := guide.Write(a.fs, dir, guide.Data{Models: status}, html)
			if gerr != nil {
				a.log.Error("write guide", zap.Error(gerr))
			}

			if !a.ro.JSONOut {
				printModelSummary(a, staged, paths)
			}
			if len(staged) < len(entries) || gerr != nil {
				return errFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "models-dir", "", "Directory models are written into (default from config)")
	cmd.Flags().StringSliceVar(&only, "only", nil, "Stage only these models (repeatable)")
	cmd.Flags().StringArrayVar(&urls, "url", nil, "Replace a model's download URLs: NAME=URL (repeatable)")
	cmd.Flags().BoolVar(&html, "html", false, "Also write an HTML rendering of the guide")

	return cmd
}

func selectModels(names []string) ([]catalog.Entry, error) {
	if len(names) == 0 {
		return catalog.Models(), nil
	}
	out := make([]catalog.Entry, 0, len(names))
	for _, n := range names {
		e, ok := catalog.Lookup(n)
		if !ok {
			return nil, usagef("unknown model %q", n)
		}
		out = append(out, e)
	}
	return out, nil
}

// overrideURLs replaces the candidates of every model named in specs. Specs
// for the same model accumulate in order.
func overrideURLs(entries []catalog.Entry, specs []string) ([]catalog.Entry, error) {
	if len(specs) == 0 {
		return entries, nil
	}
	byName := make(map[string][]string)
	for _, spec := range specs {
		name, u, ok := strings.Cut(spec, "=")
		name, u = strings.TrimSpace(name), strings.TrimSpace(u)
		if !ok || name == "" || u == "" {
			return nil, usagef("--url wants NAME=URL, got %q", spec)
		}
		e, found := catalog.Lookup(name)
		if !found {
			return nil, usagef("unknown model %q", name)
		}
		byName[e.Name] = append(byName[e.Name], u)
	}
	for i := range entries {
		if u, ok := byName[entries[i].Name]; ok {
			entries[i].URLs = u
		}
	}
	return entries, nil
}

func printModelSummary(a *app, staged, guides []string) {
	fmt.Fprintln(a.out)
	if len(staged) > 0 {
		fmt.Fprintf(a.out, "Staged %d model(s):\n", len(staged))
		for _, n := range staged {
			fmt.Fprintf(a.out, "   ✓ %s\n", n)
		}
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Next steps:")
		fmt.Fprintln(a.out, "1. Build your project in Xcode")
		fmt.Fprintln(a.out, "2. The app detects and uses these models")
		fmt.Fprintln(a.out, "3. Test food recognition in your app")
	} else {
		fmt.Fprintln(a.out, "No models downloaded directly; see the guide for alternatives.")
	}
	for _, p := range guides {
		fmt.Fprintf(a.out, "Guide: %s\n", p)
	}
}
