// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package stager

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// tarEntry is one entry of a test archive; names ending in "/" are directories.
type tarEntry struct {
	Name string
	Body string
}

func buildTar(t *testing.T, compress bool, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	var tw *tar.Writer
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(&buf)
		tw = tar.NewWriter(zw)
	} else {
		tw = tar.NewWriter(&buf)
	}
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o644, Size: int64(len(e.Body)), Typeflag: tar.TypeReg}
		if strings.HasSuffix(e.Name, "/") {
			hdr = &tar.Header{Name: e.Name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	if zw != nil {
		require.NoError(t, zw.Close())
	}
	return buf.Bytes()
}

// hitServer serves fixed bodies per path and counts requests per path.
// Paths without a body answer 500.
type hitServer struct {
	*httptest.Server

	mu     sync.Mutex
	hits   map[string]int
	bodies map[string][]byte
}

func newHitServer(t *testing.T, bodies map[string][]byte) *hitServer {
	t.Helper()
	hs := &hitServer{hits: map[string]int{}, bodies: bodies}
	hs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs.mu.Lock()
		hs.hits[r.URL.Path]++
		body, ok := hs.bodies[r.URL.Path]
		hs.mu.Unlock()
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	t.Cleanup(hs.Close)
	return hs
}

func (hs *hitServer) count(path string) int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.hits[path]
}

func (hs *hitServer) total() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	n := 0
	for _, v := range hs.hits {
		n += v
	}
	return n
}

// fastSettings keeps retries quick in tests.
func fastSettings() Settings {
	cfg := DefaultSettings()
	cfg.BackoffInitial = "1ms"
	cfg.BackoffMax = "2ms"
	return cfg
}
