// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package stager

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// progressReader wraps an io.Reader and emits progress events during reads.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	url        string
	emit       func(ProgressEvent)
	lastEmit   time.Time
	interval   time.Duration
	onData     func() // called after every non-empty read
}

func newProgressReader(r io.Reader, total int64, url string, emit func(ProgressEvent)) *progressReader {
	return &progressReader{
		reader:   r,
		total:    total,
		url:      url,
		emit:     emit,
		lastEmit: time.Now(),
		interval: 200 * time.Millisecond,
	}
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		if pr.onData != nil {
			pr.onData()
		}
		pr.downloaded += int64(n)
		if time.Since(pr.lastEmit) >= pr.interval || err == io.EOF {
			pr.emit(ProgressEvent{
				Event:      "file_progress",
				URL:        pr.url,
				Downloaded: pr.downloaded,
				Total:      pr.total,
			})
			pr.lastEmit = time.Now()
		}
	}
	return n, err
}

// fetcher runs the candidate/attempt loop for one target.
type fetcher struct {
	fs      afero.Fs
	httpc   *http.Client
	ua      string
	timeout time.Duration
	cfg     Settings
	log     *zap.Logger
	emit    func(ProgressEvent)
}

// fetched describes a successful retrieval.
type fetched struct {
	url      string
	bytes    int64
	attempts int
}

// fetch downloads the first working candidate of t.URLs to dst.
//
// Every URL gets t.RetryLimit attempts before the next one is tried, so a
// fully failing run makes RetryLimit*len(URLs) connections. The body goes to
// dst+".part" and is renamed into place only when complete.
func (f *fetcher) fetch(ctx context.Context, t Target, dst string) (*fetched, error) {
	rerr := &RetrievalError{Target: t.Name}
	total := 0

	for i, u := range t.URLs {
		if i > 0 {
			f.emit(ProgressEvent{Level: "warn", Event: "fallback", URL: u, Message: "trying next candidate"})
		}
		retry := newRetry(f.cfg)

		for attempt := 1; attempt <= t.RetryLimit; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			total++

			n, err := f.attempt(ctx, u, dst, attempt)
			if err == nil {
				f.log.Debug("fetched", zap.String("target", t.Name), zap.String("url", u),
					zap.Int64("bytes", n), zap.Int("attempts", total))
				return &fetched{url: u, bytes: n, attempts: total}, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			ae := &AttemptError{URL: u, Attempt: attempt, Err: err}
			rerr.Attempts = append(rerr.Attempts, ae)
			f.log.Debug("attempt failed", zap.String("target", t.Name), zap.Error(ae))

			if attempt < t.RetryLimit {
				f.emit(ProgressEvent{Level: "warn", Event: "retry", URL: u, Attempt: attempt, Message: err.Error()})
				if d := retry.Next(); !sleepCtx(ctx, d) {
					return nil, ctx.Err()
				}
			}
		}
	}
	return nil, rerr
}

// attempt makes one connection to u and streams the body to dst.
//
// f.timeout is an idle deadline: the attempt is abandoned once that long
// passes without a response or a body chunk. A slow transfer that keeps
// making progress is never cut off.
func (f *fetcher) attempt(ctx context.Context, u, dst string, num int) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var stalled atomic.Bool
	watchdog := time.AfterFunc(f.timeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()
	idle := func(err error) error {
		if stalled.Load() {
			return errors.Wrapf(err, "no data for %s", f.timeout)
		}
		return err
	}

	src, err := openSource(ctx, f.httpc, f.ua, u)
	if err != nil {
		return 0, idle(err)
	}
	defer src.body.Close()

	f.emit(ProgressEvent{Event: "file_start", URL: u, Path: dst, Total: src.size, Attempt: num})

	tmp := dst + ".part"
	out, err := f.fs.Create(tmp)
	if err != nil {
		return 0, errors.Wrap(err, "create partial file")
	}

	pr := newProgressReader(src.body, src.size, u, f.emit)
	pr.onData = func() { watchdog.Reset(f.timeout) }
	n, cerr := io.Copy(out, pr)
	if err := out.Close(); cerr == nil {
		cerr = err
	}
	if cerr == nil && src.size >= 0 && n != src.size {
		cerr = errors.Wrapf(ErrShortBody, "got %d of %d bytes", n, src.size)
	}
	if cerr != nil {
		_ = f.fs.Remove(tmp)
		return 0, idle(cerr)
	}
	if err := f.fs.Rename(tmp, dst); err != nil {
		_ = f.fs.Remove(tmp)
		return 0, errors.Wrap(err, "move download into place")
	}
	f.emit(ProgressEvent{Event: "file_done", URL: u, Path: dst, Total: n})
	return n, nil
}
