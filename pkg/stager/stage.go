// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package stager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Stage makes t available at t.Dest and reports what is there.
//
// The sequence is linear:
//   - Dest exists: nothing is fetched, the inventory is taken (AlreadyPresent).
//   - Otherwise the candidates are fetched in order, each up to RetryLimit
//     times. An archive already sitting at ArchivePath is reused instead.
//   - Archives are unpacked and the raw file is deleted.
//   - The inventory is taken at Dest (or Dest/Layout).
//
// Failures come back as *RetrievalError, *ExtractionError,
// *StructureMismatchError or ErrLocked; the Result still carries whatever
// was learned. A target with no URLs and no local copy yields an empty,
// unsuccessful Result and a nil error.
//
// Cancellation: attempts and backoff sleeps are tied to ctx.
func Stage(ctx context.Context, target Target, cfg Settings, progress ProgressFunc) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validate(target); err != nil {
		return Result{}, err
	}
	t := withDefaults(target)

	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("target", t.Name))
	limit := cfg.PreviewLimit
	if limit <= 0 {
		limit = 10
	}

	emit := func(ev ProgressEvent) {
		if progress == nil {
			return
		}
		if ev.Time.IsZero() {
			ev.Time = time.Now()
		}
		if ev.Target == "" {
			ev.Target = t.Name
		}
		progress(ev)
	}
	fail := func(res Result, err error) (Result, error) {
		res.Success = false
		emit(ProgressEvent{Level: "error", Event: "error", Path: t.Dest, Message: err.Error()})
		return res, err
	}

	s := &stage{t: t, fs: fsys, log: log, limit: limit, emit: emit}
	res := Result{ResolvedPath: inventoryPath(t)}

	emit(ProgressEvent{Event: "stage_start", Path: t.Dest, Message: fmt.Sprintf("%d candidate(s)", len(t.URLs))})

	if s.exists(t.Dest) {
		return s.present(res, fail)
	}
	if len(t.URLs) == 0 && !(t.Archive && s.exists(t.ArchivePath)) {
		log.Debug("no candidates and nothing local")
		emit(ProgressEvent{Level: "warn", Event: "done", Path: t.Dest, Message: "no candidate URLs"})
		return res, nil
	}

	locker := cfg.Locker
	if locker == nil {
		locker = NewFileLocker(fsys, parseDuration(cfg.LockStale, 6*time.Hour))
	}
	unlock, err := locker.Lock(ctx, t.Dest)
	if err != nil {
		return fail(res, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Warn("release lock", zap.Error(err))
		}
	}()

	// Another run may have finished while we waited for the lock.
	if s.exists(t.Dest) {
		return s.present(res, fail)
	}

	raw := t.Dest
	if t.Archive {
		raw = t.ArchivePath
	}
	if err := fsys.MkdirAll(filepath.Dir(raw), 0o755); err != nil {
		return fail(res, errors.Wrap(err, "create destination directory"))
	}

	downloaded := false
	if t.Archive && s.exists(raw) {
		log.Debug("reusing local archive", zap.String("archive", raw))
		emit(ProgressEvent{Event: "file_done", Path: raw, Message: "reusing local archive"})
	} else {
		f := &fetcher{
			fs:      fsys,
			httpc:   cfg.HTTPClient,
			ua:      cfg.Transport.UserAgent,
			timeout: parseDuration(cfg.Transport.Timeout, 5*time.Minute),
			cfg:     cfg,
			log:     log,
			emit:    emit,
		}
		if f.httpc == nil {
			f.httpc = buildHTTPClient(cfg.Transport)
		}
		got, err := f.fetch(ctx, t, raw)
		if err != nil {
			var rerr *RetrievalError
			if errors.As(err, &rerr) {
				res.Attempts = len(rerr.Attempts)
			}
			return fail(res, err)
		}
		downloaded = true
		res.SourceURL = got.url
		res.Attempts = got.attempts
		res.Bytes = got.bytes
	}

	if t.Archive {
		emit(ProgressEvent{Event: "extract_start", Path: raw, Message: "extracting into " + t.ExtractDir})
		x := &extractor{fs: fsys, log: log}
		n, err := x.extract(raw, t.ExtractDir)
		if err != nil {
			// A download from this run is most likely truncated or corrupt;
			// an archive the operator placed by hand is left alone.
			if downloaded {
				_ = fsys.Remove(raw)
			}
			return fail(res, err)
		}
		res.Extracted = true
		emit(ProgressEvent{Event: "extract_done", Path: t.ExtractDir, Total: int64(n)})

		if err := fsys.Remove(raw); err != nil {
			log.Warn("remove archive", zap.String("archive", raw), zap.Error(err))
		} else {
			emit(ProgressEvent{Event: "cleanup", Path: raw, Message: "removed archive"})
		}
	}

	return s.finish(res, fail)
}

// stage holds the per-call collaborators shared by the final steps.
type stage struct {
	t     Target
	fs    afero.Fs
	log   *zap.Logger
	limit int
	emit  func(ProgressEvent)
}

func (s *stage) exists(p string) bool {
	_, err := s.fs.Stat(p)
	return err == nil
}

func (s *stage) present(res Result, fail func(Result, error) (Result, error)) (Result, error) {
	res.AlreadyPresent = true
	s.emit(ProgressEvent{Event: "skip", Path: s.t.Dest, Message: "skip (already present)"})
	return s.finish(res, fail)
}

// finish checks the layout and takes the inventory.
func (s *stage) finish(res Result, fail func(Result, error) (Result, error)) (Result, error) {
	if !s.exists(s.t.Dest) {
		return fail(res, &StructureMismatchError{Path: filepath.Dir(s.t.Dest), Expected: filepath.Base(s.t.Dest)})
	}
	if s.t.Layout != "" && !s.exists(res.ResolvedPath) {
		return fail(res, &StructureMismatchError{Path: s.t.Dest, Expected: s.t.Layout})
	}

	count, names, err := Inventory(s.fs, res.ResolvedPath, s.limit)
	if err != nil {
		if os.IsNotExist(err) {
			return fail(res, &StructureMismatchError{Path: s.t.Dest, Expected: s.t.Layout})
		}
		return fail(res, errors.Wrap(err, "inventory"))
	}
	res.Success = true
	res.ItemCount = count
	res.SampleNames = names

	s.emit(ProgressEvent{Event: "inventory", Path: res.ResolvedPath, Total: int64(count)})
	s.emit(ProgressEvent{Event: "done", Path: s.t.Dest, Message: fmt.Sprintf("staged %s (%d items)", s.t.Name, count)})
	return res, nil
}
