// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package stager

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Common errors returned by the library.
var (
	// ErrLocked is returned when another process is staging the same destination.
	ErrLocked = errors.New("destination is locked by another staging run")

	// ErrMissingDest is returned when a target has no destination path.
	ErrMissingDest = errors.New("missing destination path")

	// ErrBadStatus is wrapped by attempt errors for non-2xx HTTP responses.
	ErrBadStatus = errors.New("bad HTTP status")

	// ErrShortBody is wrapped by attempt errors when fewer bytes arrive than announced.
	ErrShortBody = errors.New("response body shorter than Content-Length")

	// ErrEmptyArchive is wrapped by extraction errors for a zero-byte archive file.
	ErrEmptyArchive = errors.New("archive file is empty")
)

// AttemptError records one failed connection to a candidate URL.
type AttemptError struct {
	URL     string
	Attempt int // 1-based, per URL
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s (attempt %d): %v", e.URL, e.Attempt, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// RetrievalError is returned when every candidate URL and every attempt failed.
type RetrievalError struct {
	Target   string
	Attempts []*AttemptError
}

func (e *RetrievalError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("retrieve %s: no attempts made", e.Target)
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("retrieve %s: %d attempts failed, last: %v", e.Target, len(e.Attempts), last)
}

// Unwrap exposes the last attempt error to errors.Is/As.
func (e *RetrievalError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1]
}

// URLs returns the distinct candidate URLs that were tried, in order.
func (e *RetrievalError) URLs() []string {
	var out []string
	seen := map[string]struct{}{}
	for _, a := range e.Attempts {
		if _, ok := seen[a.URL]; ok {
			continue
		}
		seen[a.URL] = struct{}{}
		out = append(out, a.URL)
	}
	return out
}

// ExtractionError wraps a failure to read or unpack an archive.
type ExtractionError struct {
	Archive string
	Entry   string // offending entry, if known
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("extract %s: entry %q: %v", e.Archive, e.Entry, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// StructureMismatchError is returned when the staged tree lacks the expected layout.
type StructureMismatchError struct {
	Path     string
	Expected string
}

func (e *StructureMismatchError) Error() string {
	return fmt.Sprintf("structure mismatch under %s: expected %s", e.Path, e.Expected)
}

// Kind classifies err into one of the staging error kinds for status output.
// It returns "" for nil and "error" for anything unrecognized.
func Kind(err error) string {
	var (
		re *RetrievalError
		ee *ExtractionError
		se *StructureMismatchError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLocked):
		return "locked"
	case errors.As(err, &re):
		return "retrieval"
	case errors.As(err, &ee):
		return "extraction"
	case errors.As(err, &se):
		return "structure"
	default:
		return "error"
	}
}
