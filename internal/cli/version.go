// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gocloud.dev/blob"
)

type versionInfo struct {
	Version  string   `json:"version"`
	Revision string   `json:"revision,omitempty"`
	Modified bool     `json:"modified,omitempty"`
	Go       string   `json:"go"`
	Platform string   `json:"platform"`
	Sources  []string `json:"sources"`
}

func currentVersion(version string) versionInfo {
	v := versionInfo{
		Version:  version,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Sources:  sourceSchemes(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				v.Revision = s.Value
				if len(v.Revision) > 12 {
					v.Revision = v.Revision[:12]
				}
			case "vcs.modified":
				v.Modified = s.Value == "true"
			}
		}
	}
	return v
}

// sourceSchemes lists the URL schemes a candidate may use.
func sourceSchemes() []string {
	schemes := append([]string{"http", "https"}, blob.DefaultURLMux().BucketSchemes()...)
	sort.Strings(schemes)
	return schemes
}

func newVersionCmd(a *app, version string) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version, build revision and supported source schemes",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v := currentVersion(version)
			switch {
			case short:
				fmt.Fprintln(a.out, v.Version)
			case a.ro.JSONOut:
				_ = json.NewEncoder(a.out).Encode(v)
			default:
				rev := v.Revision
				if rev == "" {
					rev = "unknown revision"
				} else if v.Modified {
					rev += "+dirty"
				}
				fmt.Fprintf(a.out, "stager %s (%s, %s %s)\n", v.Version, rev, v.Go, v.Platform)
				fmt.Fprintf(a.out, "sources: %s\n", strings.Join(v.Sources, ", "))
			}
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")

	return cmd
}
