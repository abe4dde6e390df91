// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package stager

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gocloud.dev/blob"
)

// buildHTTPClient creates an HTTP client from the transport settings.
// There is no Client.Timeout; idle deadlines are enforced per attempt.
func buildHTTPClient(t Transport) *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: parseDuration(t.Timeout, 5*time.Minute),
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if t.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-in
	}
	return &http.Client{Transport: tr}
}

// source is an open candidate: a body plus its announced size (-1 if unknown).
type source struct {
	body io.ReadCloser
	size int64
}

// openSource opens a candidate URL for reading.
func openSource(ctx context.Context, httpc *http.Client, userAgent, rawURL string) (*source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return openHTTP(ctx, httpc, userAgent, rawURL)
	case "":
		return nil, errors.Newf("url %q has no scheme", rawURL)
	default:
		return openBlob(ctx, u)
	}
}

func openHTTP(ctx context.Context, httpc *http.Client, userAgent, rawURL string) (*source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", defaultString(userAgent, "stager/1"))

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, errors.Wrapf(ErrBadStatus, "%s", resp.Status)
	}
	return &source{body: resp.Body, size: resp.ContentLength}, nil
}

// blobLocation splits a blob URL into the bucket URL and the object key.
//
// With a host (s3://bucket/dir/key), the host names the bucket and the whole
// path is the key. Without one (file:///srv/archives/x.tar.gz), the parent
// directory is the bucket and the base name is the key.
func blobLocation(u *url.URL) (bucketURL, key string) {
	b := *u
	if u.Host != "" {
		key = strings.TrimPrefix(u.Path, "/")
		b.Path = ""
	} else {
		key = path.Base(u.Path)
		b.Path = path.Dir(u.Path)
	}
	b.RawPath = ""
	return b.String(), key
}

func openBlob(ctx context.Context, u *url.URL) (*source, error) {
	bucketURL, key := blobLocation(u)
	if key == "" || key == "." || key == "/" {
		return nil, errors.Newf("url %q names no object", u.Redacted())
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, errors.Wrapf(err, "open bucket %s", bucketURL)
	}
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		bucket.Close()
		return nil, errors.Wrapf(err, "open object %s", key)
	}
	return &source{body: &bucketReader{Reader: r, bucket: bucket}, size: r.Size()}, nil
}

// bucketReader closes the bucket together with the object reader.
type bucketReader struct {
	*blob.Reader
	bucket *blob.Bucket
}

func (br *bucketReader) Close() error {
	rerr := br.Reader.Close()
	berr := br.bucket.Close()
	if rerr != nil {
		return rerr
	}
	return berr
}
