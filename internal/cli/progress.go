// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/bodaay/stager/internal/catalog"
	"github.com/bodaay/stager/internal/tui"
	"github.com/bodaay/stager/pkg/stager"
)

// resultLine is the JSON summary emitted per target with --json.
type resultLine struct {
	Event  string        `json:"event"`
	Target string        `json:"target"`
	Result stager.Result `json:"result"`
	Kind   string        `json:"kind,omitempty"`
	Error  string        `json:"error,omitempty"`
	Steps  []string      `json:"manualSteps,omitempty"`
}

// jsonProgress returns a JSON-lines progress handler.
func jsonProgress(w io.Writer) stager.ProgressFunc {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	var mu sync.Mutex
	return func(ev stager.ProgressEvent) {
		mu.Lock()
		_ = enc.Encode(ev)
		mu.Unlock()
	}
}

// stage runs one target with the progress mode the global flags select
// and prints its outcome.
func (a *app) stage(ctx context.Context, e catalog.Entry, t stager.Target) (stager.Result, error) {
	var progress stager.ProgressFunc
	switch {
	case a.ro.JSONOut:
		progress = jsonProgress(a.out)
	case a.ro.Quiet:
	default:
		ui := tui.NewRenderer(a.out)
		defer ui.Close()
		progress = ui.Handler()
	}

	res, err := stager.Stage(ctx, t, a.settings(), progress)
	if err != nil {
		a.log.Debug("stage failed", zap.String("target", t.Name), zap.String("kind", stager.Kind(err)), zap.Error(err))
	}
	a.report(e, t, res, err)
	return res, err
}

// report prints a status line for one target, plus manual next steps when
// the target is not in place.
func (a *app) report(e catalog.Entry, t stager.Target, res stager.Result, err error) {
	if a.ro.JSONOut {
		line := resultLine{Event: "result", Target: t.Name, Result: res, Kind: stager.Kind(err)}
		if err != nil {
			line.Error = err.Error()
		}
		if !res.Success {
			line.Steps = e.ManualSteps
		}
		enc := json.NewEncoder(a.out)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(line)
		return
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	switch {
	case res.Success:
		state := "staged"
		if res.AlreadyPresent {
			state = "already present"
		}
		green.Fprintf(a.out, "✓ %s %s: %d item(s) in %s\n", t.Name, state, res.ItemCount, res.ResolvedPath)
		for i, n := range res.SampleNames {
			fmt.Fprintf(a.out, "   %d. %s\n", i+1, n)
		}
		if more := res.ItemCount - len(res.SampleNames); more > 0 {
			fmt.Fprintf(a.out, "   ... and %d more\n", more)
		}
		return
	case err == nil:
		yellow.Fprintf(a.out, "! %s: no sources configured and nothing at %s\n", t.Name, t.Dest)
	default:
		red.Fprintf(a.out, "✗ %s: %s failure: %v\n", t.Name, stager.Kind(err), err)
	}

	if len(e.ManualSteps) > 0 {
		fmt.Fprintln(a.out, "  Manual steps:")
		for i, s := range e.ManualSteps {
			fmt.Fprintf(a.out, "   %d. %s\n", i+1, s)
		}
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
