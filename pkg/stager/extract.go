// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package stager

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// gzipMagic is the two-byte gzip header.
var gzipMagic = []byte{0x1f, 0x8b}

// extractor unpacks tar archives onto a filesystem.
type extractor struct {
	fs  afero.Fs
	log *zap.Logger
}

// extract unpacks archive into dir and returns the number of top-level entries.
//
// Entries are written into a hidden staging directory first and moved into
// dir afterwards, so a failed run leaves no partial entries under dir.
func (x *extractor) extract(archive, dir string) (int, error) {
	f, err := x.fs.Open(archive)
	if err != nil {
		return 0, &ExtractionError{Archive: archive, Err: err}
	}
	defer f.Close()

	r, err := decompress(f)
	if err != nil {
		return 0, &ExtractionError{Archive: archive, Err: err}
	}

	// Hidden names are skipped by Inventory. The staging directory only goes
	// inside dir when dir already exists, so a missing Dest stays missing.
	dir = filepath.Clean(dir)
	staging := filepath.Join(filepath.Dir(dir), ".stage-"+uuid.NewString())
	if _, err := x.fs.Stat(dir); err == nil {
		staging = filepath.Join(dir, ".stage-"+uuid.NewString())
	}
	if err := x.fs.MkdirAll(staging, 0o755); err != nil {
		return 0, &ExtractionError{Archive: archive, Err: err}
	}
	defer x.fs.RemoveAll(staging)

	if err := x.unpack(tar.NewReader(r), archive, staging); err != nil {
		return 0, err
	}

	entries, err := afero.ReadDir(x.fs, staging)
	if err != nil {
		return 0, &ExtractionError{Archive: archive, Err: err}
	}
	if err := x.place(staging, dir, entries); err != nil {
		return 0, &ExtractionError{Archive: archive, Err: err}
	}
	return len(entries), nil
}

// decompress returns a reader over the tar stream, unwrapping gzip when present.
func decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "read archive header")
	}
	if len(head) == 0 {
		return nil, ErrEmptyArchive
	}
	if len(head) == len(gzipMagic) && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		return zr, nil
	}
	return br, nil
}

// unpack writes every tar entry below root.
func (x *extractor) unpack(tr *tar.Reader, archive, root string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &ExtractionError{Archive: archive, Err: errors.Wrap(err, "read tar entry")}
		}

		rel, ok := safeEntryPath(hdr.Name)
		if !ok {
			return &ExtractionError{Archive: archive, Entry: hdr.Name, Err: errors.New("entry escapes extraction root")}
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(root, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := x.fs.MkdirAll(target, 0o755); err != nil {
				return &ExtractionError{Archive: archive, Entry: hdr.Name, Err: err}
			}
		case tar.TypeReg:
			if err := x.writeFile(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return &ExtractionError{Archive: archive, Entry: hdr.Name, Err: err}
			}
		default:
			// Links and device nodes are not part of any dataset we stage.
			x.log.Debug("skipping tar entry", zap.String("entry", hdr.Name), zap.Uint8("type", hdr.Typeflag))
		}
	}
}

func (x *extractor) writeFile(r io.Reader, target string, perm os.FileMode) error {
	if err := x.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := x.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// place moves the unpacked entries from staging into dir.
func (x *extractor) place(staging, dir string, entries []os.FileInfo) error {
	if _, err := x.fs.Stat(dir); os.IsNotExist(err) {
		if err := x.fs.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return err
		}
		return x.fs.Rename(staging, dir)
	}
	for _, e := range entries {
		dst := filepath.Join(dir, e.Name())
		if _, err := x.fs.Stat(dst); err == nil {
			return errors.Newf("%s already exists", dst)
		}
		if err := x.fs.Rename(filepath.Join(staging, e.Name()), dst); err != nil {
			return err
		}
	}
	return nil
}

// safeEntryPath cleans a tar entry name. It reports false for names that
// would land outside the extraction root.
func safeEntryPath(name string) (string, bool) {
	name = strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(name) {
		return "", false
	}
	clean := path.Clean(name)
	if clean == "." {
		return "", true
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}
