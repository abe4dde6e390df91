// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bodaay/stager/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd(a))
	cmd.AddCommand(newConfigShowCmd(a))
	cmd.AddCommand(newConfigPathCmd(a))

	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var (
		force   bool
		useYAML bool
	)

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a default configuration file",
		Annotations: map[string]string{annotCreatesConfig: "true"},
		Long: `Creates a default configuration file at ~/.config/stager.json (or .yaml)

The configuration file sets default values for the command flags.
STAGER_* environment variables override it, and CLI flags override both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.ro.Config
			if path == "" {
				path = config.DefaultPath(useYAML)
			}

			// Defaults only, without the current environment.
			def := &config.Config{
				DatasetRoot:    "Food101_Training",
				ModelsDir:      "MacroTrackr/Models",
				Timeout:        "5m",
				UserAgent:      "stager/1",
				BackoffInitial: "400ms",
				BackoffMax:     "10s",
				PreviewLimit:   10,
				LockStale:      "6h",
				LogLevel:       "info",
			}
			if err := config.Write(path, def, force); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "✓ Created config file: %s\n", path)
			fmt.Fprintln(a.out)
			fmt.Fprintln(a.out, "Edit this file to set your defaults. For example:")
			fmt.Fprintln(a.out, "  - Change the dataset root or models directory")
			fmt.Fprintln(a.out, "  - Add mirror URLs for the dataset")
			fmt.Fprintln(a.out, "  - Point redis_lock at a shared Redis")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	cmd.Flags().BoolVar(&useYAML, "yaml", false, "Create YAML config instead of JSON")

	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := a.ro.Config
			if src == "" {
				src = config.Find()
			}
			if src == "" {
				fmt.Fprintln(a.out, "# no config file; defaults and environment")
			} else {
				fmt.Fprintf(a.out, "# %s\n", src)
			}

			data, err := config.Marshal(a.cfg, !asJSON)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json-format", false, "Print as JSON instead of YAML")

	return cmd
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if p := config.Find(); p != "" {
				fmt.Fprintln(a.out, p)
				return
			}
			fmt.Fprintln(a.out, config.DefaultPath(false))
		},
	}
}
