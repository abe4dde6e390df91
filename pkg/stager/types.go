// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package stager

import (
	"net/http"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Target defines what to stage and where.
//
// A Target is immutable once built; Stage never modifies it. Dest is the
// post-extraction path whose existence means "already staged".
//
// Example:
//
//	t := stager.Target{
//	    Name:       "food-101",
//	    URLs:       []string{"https://data.vision.ee.ethz.ch/cvl/food-101.tar.gz"},
//	    Dest:       "datasets/food-101",
//	    ExtractDir: "datasets",
//	    Archive:    true,
//	    Layout:     "images",
//	    RetryLimit: 1,
//	}
type Target struct {
	// Name is a short label used in events and errors.
	// If empty, the base name of Dest is used.
	Name string

	// URLs are candidate sources for the same resource, tried in order.
	// http and https go through the HTTP client; any other scheme
	// (file, s3, gs, mem) is opened as a gocloud.dev blob.
	URLs []string

	// Dest is the path that exists once the target is staged: the
	// downloaded file, or the top-level directory the archive unpacks to.
	Dest string

	// Archive marks the download as a gzip-compressed tar to unpack.
	Archive bool

	// ArchivePath is where the raw archive is written before extraction.
	// If empty, the base name of the first URL inside ExtractDir is used.
	ArchivePath string

	// ExtractDir is the directory archive entries are unpacked into.
	// If empty, Dest itself.
	//
	// Archives that carry their own top-level folder (food-101.tar.gz holds
	// "food-101/...") set ExtractDir to the parent of Dest.
	ExtractDir string

	// Layout is an optional slash-separated sub-path expected under Dest,
	// such as "images". When set, the inventory is taken there and its
	// absence is reported as a StructureMismatchError.
	Layout string

	// RetryLimit is the number of attempts made against each URL before
	// moving to the next candidate. It counts attempts, not retries: 1 means
	// one connection per URL. Zero and negative values also mean one
	// attempt, never zero attempts.
	RetryLimit int
}

// Result reports the outcome of one Stage call.
type Result struct {
	// Success is true when Dest is in place (fetched now or already present).
	Success bool `json:"success"`

	// ResolvedPath is the path the inventory was taken from.
	ResolvedPath string `json:"resolvedPath"`

	// ItemCount is the number of immediate, non-hidden entries found.
	ItemCount int `json:"itemCount"`

	// SampleNames holds the first PreviewLimit entry names, sorted.
	SampleNames []string `json:"sampleNames,omitempty"`

	// AlreadyPresent is true when Dest existed and no work was done.
	AlreadyPresent bool `json:"alreadyPresent,omitempty"`

	// SourceURL is the candidate that served the bytes.
	SourceURL string `json:"sourceUrl,omitempty"`

	// Attempts is the number of connections made.
	Attempts int `json:"attempts,omitempty"`

	// Bytes is the size of the downloaded file.
	Bytes int64 `json:"bytes,omitempty"`

	// Extracted is true when an archive was unpacked during this call.
	Extracted bool `json:"extracted,omitempty"`
}

// Transport configures outbound connections.
//
// TLS verification is on unless InsecureSkipVerify is set explicitly.
type Transport struct {
	// Timeout is how long an attempt may go without receiving anything:
	// no response headers, or no body bytes since the last chunk. It does
	// not cap the total transfer time.
	// Accepts duration strings: "30s", "5m". If empty, defaults to "5m".
	Timeout string

	// InsecureSkipVerify disables certificate and host name checks.
	// Only meant for broken mirrors; never enabled by default.
	InsecureSkipVerify bool

	// UserAgent is sent with every HTTP request.
	// If empty, defaults to "stager/1".
	UserAgent string
}

// Settings configures staging behavior.
//
// All fields have defaults, so the zero value is usable:
//
//	res, err := stager.Stage(ctx, target, stager.Settings{}, nil)
type Settings struct {
	// Transport configures the HTTP client built when HTTPClient is nil.
	Transport Transport

	// BackoffInitial is the delay before the second attempt against a URL.
	// If empty, defaults to "400ms".
	BackoffInitial string

	// BackoffMax caps the delay between attempts.
	// If empty, defaults to "10s".
	BackoffMax string

	// PreviewLimit bounds Result.SampleNames.
	// If <= 0, defaults to 10.
	PreviewLimit int

	// LockStale is the age after which a leftover lock marker is reclaimed.
	// Only used by the default FileLocker. If empty, defaults to "6h".
	LockStale string

	// Fs is the filesystem everything is staged on.
	// If nil, the OS filesystem is used.
	Fs afero.Fs

	// Locker serializes runs on the same Dest.
	// If nil, a FileLocker on Fs is used.
	Locker Locker

	// HTTPClient overrides the client built from Transport.
	HTTPClient *http.Client

	// Logger receives debug-level details. If nil, nothing is logged.
	Logger *zap.Logger
}

// ProgressEvent represents a progress update during staging.
//
// The Event field indicates the type of event:
//   - "stage_start": A target is being processed
//   - "skip": Dest already exists, nothing fetched
//   - "file_start": A download attempt has started
//   - "file_progress": Periodic progress update during download
//   - "retry": An attempt failed and the same URL will be tried again
//   - "fallback": A URL is exhausted and the next candidate is tried
//   - "file_done": Download complete
//   - "extract_start", "extract_done": Archive extraction
//   - "cleanup": The raw archive was removed
//   - "inventory": Inventory taken (Total holds the item count)
//   - "error": Staging failed
//   - "done": Staging complete
type ProgressEvent struct {
	// Time is when the event occurred.
	Time time.Time `json:"time"`

	// Level is the log level: "debug", "info", "warn", "error".
	// Empty defaults to "info".
	Level string `json:"level,omitempty"`

	// Event is the event type identifier.
	Event string `json:"event"`

	// Target is the target name.
	Target string `json:"target,omitempty"`

	// URL is the candidate being fetched.
	URL string `json:"url,omitempty"`

	// Path is the local path concerned.
	Path string `json:"path,omitempty"`

	// Total is the expected size in bytes (or the item count for "inventory").
	Total int64 `json:"total,omitempty"`

	// Downloaded is the cumulative bytes downloaded so far.
	Downloaded int64 `json:"downloaded,omitempty"`

	// Attempt is the attempt number against URL (1-based).
	Attempt int `json:"attempt,omitempty"`

	// Message contains additional context or error details.
	Message string `json:"message,omitempty"`
}

// ProgressFunc is a callback for receiving progress events.
// Stage calls it synchronously from the calling goroutine.
type ProgressFunc func(ProgressEvent)

// DefaultSettings returns Settings with defaults filled in.
func DefaultSettings() Settings {
	return Settings{
		Transport: Transport{
			Timeout:   "5m",
			UserAgent: "stager/1",
		},
		BackoffInitial: "400ms",
		BackoffMax:     "10s",
		PreviewLimit:   10,
		LockStale:      "6h",
	}
}
