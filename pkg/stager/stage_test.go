// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package stager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/fileblob"
)

func TestStage_ArchiveScenario(t *testing.T) {
	archive := buildTar(t, true,
		tarEntry{Name: "a/"},
		tarEntry{Name: "a/x.txt", Body: "x"},
		tarEntry{Name: "b/y.txt", Body: "y"},
		tarEntry{Name: "c.txt", Body: "c"},
	)
	srv := newHitServer(t, map[string][]byte{"/data.tar.gz": archive})
	dir := t.TempDir()

	target := Target{
		URLs:       []string{srv.URL + "/data.tar.gz"},
		Dest:       filepath.Join(dir, "data"),
		Archive:    true,
		RetryLimit: 3,
	}

	var events []string
	res, err := Stage(context.Background(), target, fastSettings(), func(e ProgressEvent) {
		events = append(events, e.Event)
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Extracted)
	assert.False(t, res.AlreadyPresent)
	assert.Equal(t, 3, res.ItemCount)
	assert.Equal(t, []string{"a", "b", "c.txt"}, res.SampleNames)
	assert.Equal(t, srv.URL+"/data.tar.gz", res.SourceURL)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int64(len(archive)), res.Bytes)

	assert.NoFileExists(t, filepath.Join(dir, "data.tar.gz"), "raw archive must be removed")
	assert.NoFileExists(t, filepath.Join(dir, "data.tar.gz.part"))
	assert.NoFileExists(t, MarkerPath(target.Dest), "lock marker must be released")
	assert.FileExists(t, filepath.Join(dir, "data", "a", "x.txt"))
	assert.Contains(t, events, "extract_done")
	assert.Contains(t, events, "cleanup")

	t.Run("second run does no work", func(t *testing.T) {
		again, err := Stage(context.Background(), target, fastSettings(), nil)
		require.NoError(t, err)
		assert.True(t, again.AlreadyPresent)
		assert.False(t, again.Extracted)
		assert.Equal(t, res.ItemCount, again.ItemCount)
		assert.Equal(t, res.SampleNames, again.SampleNames)
		assert.Equal(t, 1, srv.total(), "no network call on re-run")
	})
}

func TestStage_RetryBound(t *testing.T) {
	srv := newHitServer(t, nil)
	dir := t.TempDir()

	target := Target{
		Name:       "model",
		URLs:       []string{srv.URL + "/a", srv.URL + "/b"},
		Dest:       filepath.Join(dir, "Model.mlmodel"),
		RetryLimit: 3,
	}

	var retries, fallbacks int
	res, err := Stage(context.Background(), target, fastSettings(), func(e ProgressEvent) {
		switch e.Event {
		case "retry":
			retries++
		case "fallback":
			fallbacks++
		}
	})
	require.Error(t, err)

	var rerr *RetrievalError
	require.True(t, errors.As(err, &rerr))
	assert.Len(t, rerr.Attempts, 6)
	assert.Equal(t, []string{srv.URL + "/a", srv.URL + "/b"}, rerr.URLs())
	assert.True(t, errors.Is(err, ErrBadStatus))
	assert.Equal(t, "retrieval", Kind(err))

	assert.Equal(t, 3, srv.count("/a"))
	assert.Equal(t, 3, srv.count("/b"))
	assert.Equal(t, 4, retries)
	assert.Equal(t, 1, fallbacks)

	assert.False(t, res.Success)
	assert.Equal(t, 6, res.Attempts)
	assert.NoFileExists(t, target.Dest)
	assert.NoFileExists(t, target.Dest+".part")
}

func TestStage_ZeroRetryLimitAttemptsOnce(t *testing.T) {
	srv := newHitServer(t, map[string][]byte{"/b": []byte("model")})
	dir := t.TempDir()

	res, err := Stage(context.Background(), Target{
		URLs: []string{srv.URL + "/a", srv.URL + "/b"},
		Dest: filepath.Join(dir, "Model.mlmodel"),
	}, fastSettings(), nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, srv.count("/a"))
	assert.Equal(t, 1, srv.count("/b"))
	assert.Equal(t, srv.URL+"/b", res.SourceURL)
}

func TestStage_FallbackOrdering(t *testing.T) {
	srv := newHitServer(t, map[string][]byte{"/b": []byte("model-bytes")})
	dir := t.TempDir()

	target := Target{
		URLs:       []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"},
		Dest:       filepath.Join(dir, "models", "MobileNetV2.mlmodel"),
		RetryLimit: 2,
	}

	res, err := Stage(context.Background(), target, fastSettings(), nil)
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/b", res.SourceURL)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 2, srv.count("/a"))
	assert.Equal(t, 1, srv.count("/b"))
	assert.Equal(t, 0, srv.count("/c"), "nothing is tried after a success")

	assert.Equal(t, 1, res.ItemCount)
	assert.Equal(t, []string{"MobileNetV2.mlmodel"}, res.SampleNames)
	data, err := os.ReadFile(target.Dest)
	require.NoError(t, err)
	assert.Equal(t, "model-bytes", string(data))
}

func TestStage_NoCandidates(t *testing.T) {
	dir := t.TempDir()
	res, err := Stage(context.Background(), Target{Dest: filepath.Join(dir, "nothing")}, fastSettings(), nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.ItemCount)
	assert.Empty(t, res.SampleNames)
}

func TestStage_MissingDest(t *testing.T) {
	_, err := Stage(context.Background(), Target{URLs: []string{"https://example.com/x"}}, Settings{}, nil)
	assert.ErrorIs(t, err, ErrMissingDest)
}

func TestStage_Layout(t *testing.T) {
	t.Run("categories under images", func(t *testing.T) {
		archive := buildTar(t, true,
			tarEntry{Name: "food-101/images/baklava/1.jpg", Body: "1"},
			tarEntry{Name: "food-101/images/apple_pie/2.jpg", Body: "2"},
			tarEntry{Name: "food-101/images/.DS_Store", Body: "junk"},
			tarEntry{Name: "food-101/meta/classes.txt", Body: "apple_pie\nbaklava\n"},
		)
		srv := newHitServer(t, map[string][]byte{"/food-101.tar.gz": archive})
		root := t.TempDir()

		target := Target{
			URLs:       []string{srv.URL + "/food-101.tar.gz"},
			Dest:       filepath.Join(root, "food-101"),
			ExtractDir: root,
			Archive:    true,
			Layout:     "images",
		}
		res, err := Stage(context.Background(), target, fastSettings(), nil)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "food-101", "images"), res.ResolvedPath)
		assert.Equal(t, 2, res.ItemCount)
		assert.Equal(t, []string{"apple_pie", "baklava"}, res.SampleNames)
		assert.NoFileExists(t, filepath.Join(root, "food-101.tar.gz"))
	})

	t.Run("missing layout is a structure mismatch", func(t *testing.T) {
		archive := buildTar(t, true, tarEntry{Name: "food-101/meta/classes.txt", Body: "x"})
		srv := newHitServer(t, map[string][]byte{"/food-101.tar.gz": archive})
		root := t.TempDir()

		target := Target{
			URLs:       []string{srv.URL + "/food-101.tar.gz"},
			Dest:       filepath.Join(root, "food-101"),
			ExtractDir: root,
			Archive:    true,
			Layout:     "images",
		}
		res, err := Stage(context.Background(), target, fastSettings(), nil)
		var se *StructureMismatchError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "images", se.Expected)
		assert.Equal(t, "structure", Kind(err))
		assert.False(t, res.Success)
	})

	t.Run("archive without the expected top folder", func(t *testing.T) {
		archive := buildTar(t, true, tarEntry{Name: "food101/images/x/1.jpg", Body: "x"})
		srv := newHitServer(t, map[string][]byte{"/food-101.tar.gz": archive})
		root := t.TempDir()

		target := Target{
			URLs:       []string{srv.URL + "/food-101.tar.gz"},
			Dest:       filepath.Join(root, "food-101"),
			ExtractDir: root,
			Archive:    true,
		}
		_, err := Stage(context.Background(), target, fastSettings(), nil)
		var se *StructureMismatchError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "food-101", se.Expected)
	})
}

func TestStage_CorruptArchive(t *testing.T) {
	srv := newHitServer(t, map[string][]byte{"/data.tar.gz": []byte("definitely not a tarball")})
	dir := t.TempDir()

	target := Target{
		URLs:    []string{srv.URL + "/data.tar.gz"},
		Dest:    filepath.Join(dir, "data"),
		Archive: true,
	}
	res, err := Stage(context.Background(), target, fastSettings(), nil)

	var ee *ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "extraction", Kind(err))
	assert.False(t, res.Success)
	assert.NoDirExists(t, target.Dest)
	assert.NoFileExists(t, filepath.Join(dir, "data.tar.gz"), "corrupt download is discarded")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no staging leftovers")
}

func TestStage_ZeroByteArchive(t *testing.T) {
	srv := newHitServer(t, map[string][]byte{"/food-101.tar.gz": {}})
	dir := t.TempDir()

	target := Target{
		URLs:       []string{srv.URL + "/food-101.tar.gz"},
		Dest:       filepath.Join(dir, "food-101"),
		ExtractDir: dir,
		Archive:    true,
	}
	res, err := Stage(context.Background(), target, fastSettings(), nil)
	require.ErrorIs(t, err, ErrEmptyArchive)
	assert.Equal(t, "extraction", Kind(err))
	assert.False(t, res.Success)
	assert.NoDirExists(t, target.Dest)
	assert.NoFileExists(t, filepath.Join(dir, "food-101.tar.gz"))
}

func TestStage_ReusesLocalArchive(t *testing.T) {
	dir := t.TempDir()
	archive := buildTar(t, true, tarEntry{Name: "food-101/images/ramen/1.jpg", Body: "r"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "food-101.tar.gz"), archive, 0o644))

	target := Target{
		Dest:        filepath.Join(dir, "food-101"),
		ExtractDir:  dir,
		ArchivePath: filepath.Join(dir, "food-101.tar.gz"),
		Archive:     true,
		Layout:      "images",
	}
	res, err := Stage(context.Background(), target, fastSettings(), nil)
	require.NoError(t, err)
	assert.True(t, res.Extracted)
	assert.Empty(t, res.SourceURL)
	assert.Equal(t, 1, res.ItemCount)
	assert.NoFileExists(t, filepath.Join(dir, "food-101.tar.gz"))
}

func TestStage_ShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	target := Target{URLs: []string{srv.URL + "/m"}, Dest: filepath.Join(t.TempDir(), "m.mlmodel")}
	_, err := Stage(context.Background(), target, fastSettings(), nil)
	assert.Equal(t, "retrieval", Kind(err))
	assert.NoFileExists(t, target.Dest)
}

func TestStage_Locked(t *testing.T) {
	srv := newHitServer(t, map[string][]byte{"/m": []byte("m")})
	dir := t.TempDir()
	dest := filepath.Join(dir, "m.mlmodel")
	require.NoError(t, os.WriteFile(MarkerPath(dest), []byte("holder=other"), 0o644))

	_, err := Stage(context.Background(), Target{URLs: []string{srv.URL + "/m"}, Dest: dest}, fastSettings(), nil)
	assert.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, "locked", Kind(err))
	assert.Equal(t, 0, srv.total())
	assert.FileExists(t, MarkerPath(dest), "someone else's marker is left alone")
}

func TestStage_BlobSource(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "ResNet50.mlmodel"), []byte("resnet"), 0o644))
	dest := filepath.Join(t.TempDir(), "ResNet50.mlmodel")

	target := Target{
		URLs: []string{"file://" + filepath.ToSlash(filepath.Join(src, "ResNet50.mlmodel"))},
		Dest: dest,
	}
	res, err := Stage(context.Background(), target, fastSettings(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len("resnet")), res.Bytes)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "resnet", string(data))
}

func TestStage_TLSVerification(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	t.Run("verified by default", func(t *testing.T) {
		target := Target{URLs: []string{srv.URL + "/m"}, Dest: filepath.Join(t.TempDir(), "m")}
		_, err := Stage(context.Background(), target, fastSettings(), nil)
		assert.Equal(t, "retrieval", Kind(err))
	})

	t.Run("explicit opt-out", func(t *testing.T) {
		cfg := fastSettings()
		cfg.Transport.InsecureSkipVerify = true
		target := Target{URLs: []string{srv.URL + "/m"}, Dest: filepath.Join(t.TempDir(), "m")}
		res, err := Stage(context.Background(), target, cfg, nil)
		require.NoError(t, err)
		assert.True(t, res.Success)
	})
}

func TestStage_Canceled(t *testing.T) {
	srv := newHitServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target := Target{URLs: []string{srv.URL + "/m"}, Dest: filepath.Join(t.TempDir(), "m"), RetryLimit: 5}
	_, err := Stage(ctx, target, fastSettings(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, srv.total())
}

// trickle serves n bytes one at a time, pausing between them.
func trickle(n int, pause time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(n))
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		for i := 0; i < n; i++ {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(pause):
			}
			w.Write([]byte{'x'})
			w.(http.Flusher).Flush()
		}
	}
}

func TestStage_SlowTransferIsNotCutOff(t *testing.T) {
	srv := httptest.NewServer(trickle(20, 20*time.Millisecond))
	defer srv.Close()

	cfg := fastSettings()
	cfg.Transport.Timeout = "150ms"
	target := Target{URLs: []string{srv.URL + "/food-101.tar.gz"}, Dest: filepath.Join(t.TempDir(), "blob")}

	res, err := Stage(context.Background(), target, cfg, nil)
	require.NoError(t, err, "total time exceeds Timeout but bytes keep arriving")
	assert.Equal(t, int64(20), res.Bytes)
}

func TestStage_StalledTransferTimesOut(t *testing.T) {
	srv := httptest.NewServer(trickle(5, time.Second))
	defer srv.Close()

	cfg := fastSettings()
	cfg.Transport.Timeout = "100ms"
	target := Target{URLs: []string{srv.URL + "/m"}, Dest: filepath.Join(t.TempDir(), "m")}

	start := time.Now()
	_, err := Stage(context.Background(), target, cfg, nil)
	assert.Equal(t, "retrieval", Kind(err))
	assert.Contains(t, err.Error(), "no data for 100ms")
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.NoFileExists(t, target.Dest)
}
