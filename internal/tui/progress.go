// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/bodaay/stager/pkg/stager"
)

// barTemplate renders: name  12.3 MiB / 5.0 GiB [====>    ] 12% 4.1 MiB/s
const barTemplate = `{{string . "prefix"}} {{counters . }} {{bar . "[" "=" ">" " " "]"}} {{percent . }} {{speed . }}`

// plainInterval throttles progress lines when no terminal is attached.
const plainInterval = 5 * time.Second

// Renderer shows one progress bar per download attempt and a status line
// for every other stage event.
//   - On a terminal: a live pb/v3 bar with colored status lines.
//   - Otherwise: plain lines, with download progress every few seconds.
type Renderer struct {
	out         io.Writer
	interactive bool

	mu       sync.Mutex
	bar      *pb.ProgressBar
	lastLine time.Time
	ok       *color.Color
	warn     *color.Color
	bad      *color.Color
}

// NewRenderer creates a renderer writing to out.
func NewRenderer(out io.Writer) *Renderer {
	r := &Renderer{
		out:         out,
		interactive: isInteractive(out),
		ok:          color.New(color.FgGreen),
		warn:        color.New(color.FgYellow),
		bad:         color.New(color.FgRed),
	}
	if !r.interactive || os.Getenv("NO_COLOR") != "" {
		for _, c := range []*color.Color{r.ok, r.warn, r.bad} {
			c.DisableColor()
		}
	}
	return r
}

// Close finishes a bar left open by an interrupted download.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishBar()
}

// Handler returns a ProgressFunc that renders events.
func (r *Renderer) Handler() stager.ProgressFunc {
	return func(ev stager.ProgressEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.apply(ev)
	}
}

func (r *Renderer) apply(ev stager.ProgressEvent) {
	switch ev.Event {
	case "stage_start":
		fmt.Fprintf(r.out, "==> %s (%s)\n", ev.Target, ev.Message)
	case "skip":
		r.ok.Fprintf(r.out, "    already present: %s\n", ev.Path)
	case "file_start":
		r.finishBar()
		fmt.Fprintf(r.out, "    downloading %s (attempt %d)\n", ev.URL, ev.Attempt)
		if r.interactive {
			r.bar = pb.New64(ev.Total).
				SetTemplateString(barTemplate).
				SetWriter(r.out).
				Set(pb.Bytes, true).
				Set("prefix", "    "+ev.Target).
				Start()
		}
		r.lastLine = time.Now()
	case "file_progress":
		if r.bar != nil {
			if ev.Total > 0 {
				r.bar.SetTotal(ev.Total)
			}
			r.bar.SetCurrent(ev.Downloaded)
			return
		}
		if time.Since(r.lastLine) >= plainInterval {
			fmt.Fprintf(r.out, "    %s\n", humanProgress(ev.Downloaded, ev.Total))
			r.lastLine = time.Now()
		}
	case "file_done":
		r.finishBar()
		r.ok.Fprintf(r.out, "    fetched %s\n", ev.Path)
	case "retry":
		r.finishBar()
		r.warn.Fprintf(r.out, "    attempt %d failed: %s\n", ev.Attempt, ev.Message)
	case "fallback":
		r.finishBar()
		r.warn.Fprintf(r.out, "    trying next source: %s\n", ev.URL)
	case "extract_start":
		fmt.Fprintf(r.out, "    %s\n", ev.Message)
	case "extract_done":
		r.ok.Fprintf(r.out, "    extracted %d top-level entries into %s\n", ev.Total, ev.Path)
	case "cleanup":
		fmt.Fprintf(r.out, "    removed %s\n", ev.Path)
	case "inventory":
		fmt.Fprintf(r.out, "    %d items in %s\n", ev.Total, ev.Path)
	case "error":
		r.finishBar()
		r.bad.Fprintf(r.out, "    failed: %s\n", ev.Message)
	}
}

func (r *Renderer) finishBar() {
	if r.bar != nil {
		r.bar.Finish()
		r.bar = nil
	}
}

func isInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func humanProgress(done, total int64) string {
	if total <= 0 {
		return humanBytes(done)
	}
	return fmt.Sprintf("%s / %s (%.0f%%)", humanBytes(done), humanBytes(total), float64(done)*100/float64(total))
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
