// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package stager

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// validate checks that the target is usable.
func validate(t Target) error {
	if strings.TrimSpace(t.Dest) == "" {
		return ErrMissingDest
	}
	for _, u := range t.URLs {
		if _, err := url.Parse(u); err != nil {
			return errors.Wrapf(err, "invalid candidate URL %q", u)
		}
	}
	if t.Layout != "" && (path.IsAbs(t.Layout) || strings.HasPrefix(path.Clean(t.Layout), "..")) {
		return errors.Newf("layout %q must be relative to the destination", t.Layout)
	}
	return nil
}

// withDefaults fills the optional Target fields.
func withDefaults(t Target) Target {
	if t.Name == "" {
		t.Name = filepath.Base(t.Dest)
	}
	if t.RetryLimit < 1 {
		t.RetryLimit = 1
	}
	if t.Archive {
		if t.ExtractDir == "" {
			t.ExtractDir = t.Dest
		}
		if t.ArchivePath == "" {
			name := t.Name + ".tar.gz"
			if len(t.URLs) > 0 {
				if b := urlBase(t.URLs[0]); b != "" {
					name = b
				}
			}
			// Never inside Dest: its existence is the "staged" signal.
			dir := t.ExtractDir
			if filepath.Clean(dir) == filepath.Clean(t.Dest) {
				dir = filepath.Dir(filepath.Clean(t.Dest))
			}
			t.ArchivePath = filepath.Join(dir, name)
		}
	}
	return t
}

// urlBase returns the last path segment of a URL, or "" if there is none.
func urlBase(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	b := path.Base(u.Path)
	if b == "." || b == "/" {
		return ""
	}
	return b
}

// backoff implements exponential backoff with jitter.
type backoff struct {
	next   time.Duration
	max    time.Duration
	mult   float64
	jitter time.Duration
}

// newRetry creates a new backoff instance from settings.
func newRetry(cfg Settings) *backoff {
	init := parseDuration(cfg.BackoffInitial, 400*time.Millisecond)
	max := parseDuration(cfg.BackoffMax, 10*time.Second)
	jitter := 120 * time.Millisecond
	if init < jitter {
		jitter = init
	}
	return &backoff{next: init, max: max, mult: 1.6, jitter: jitter}
}

// Next returns the next backoff duration.
func (b *backoff) Next() time.Duration {
	d := b.next + time.Duration(int64(b.jitter)*int64(time.Now().UnixNano()%3)/2)
	b.next = time.Duration(float64(b.next) * b.mult)
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// sleepCtx waits for d or returns false if ctx is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// parseDuration parses s, falling back to def when s is empty or invalid.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// defaultString returns s if non-empty, otherwise def.
func defaultString(s string, def string) string {
	if s == "" {
		return def
	}
	return s
}
