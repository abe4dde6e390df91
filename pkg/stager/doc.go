// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

/*
Package stager makes large remote resources (dataset archives, model files)
available at a known local path, idempotently.

# Quick Start

	target := stager.Target{
		URLs:       []string{"https://data.vision.ee.ethz.ch/cvl/food-101.tar.gz"},
		Dest:       "datasets/food-101",
		ExtractDir: "datasets",
		Archive:    true,
		Layout:     "images",
	}

	res, err := stager.Stage(ctx, target, stager.DefaultSettings(), nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%d categories, e.g. %v\n", res.ItemCount, res.SampleNames)

# Idempotence

If Target.Dest exists, Stage does no network or extraction work and only
takes the inventory. Run it as often as you like.

# Candidates and Retries

Target.URLs are alternatives for the same resource. Each URL is tried up to
Target.RetryLimit times, with exponential backoff between attempts, before
the next URL is tried. When every attempt fails Stage returns a
*RetrievalError listing them all.

URLs with a scheme other than http or https are opened through
gocloud.dev/blob, so s3://, gs:// and file:// sources work once the
corresponding driver is linked in:

	import _ "gocloud.dev/blob/s3blob"

# Archives

With Target.Archive set, the download is read as a gzip-compressed tar
(uncompressed tar is accepted too) and unpacked into Target.ExtractDir. The
raw archive is deleted after a successful extraction. An archive already at
Target.ArchivePath is reused, which covers archives fetched by hand.

# Transport

TLS verification is always on unless Transport.InsecureSkipVerify is set.
Settings.HTTPClient replaces the client altogether.

# Filesystem and Locking

All filesystem access goes through Settings.Fs (an afero.Fs), which defaults
to the OS filesystem. Concurrent runs on the same Dest are serialized by
Settings.Locker; the default FileLocker creates "<dest>.stage-lock"
exclusively, and RedisLocker does the same across hosts.

# Errors

	res, err := stager.Stage(ctx, target, cfg, nil)
	var rerr *stager.RetrievalError
	switch {
	case errors.As(err, &rerr):
		// every candidate failed; rerr.Attempts has the details
	case stager.Kind(err) == "extraction":
		// corrupt archive
	}
*/
package stager
