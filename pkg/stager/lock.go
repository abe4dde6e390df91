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
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

// Locker serializes staging runs on the same destination.
//
// Lock returns ErrLocked (possibly wrapped) when another holder owns key.
// The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func() error, err error)
}

// FileLocker guards a destination with an exclusive marker file next to it:
// "<dest>.stage-lock", created with O_EXCL.
type FileLocker struct {
	Fs afero.Fs

	// Stale is the marker age after which it is assumed abandoned and
	// removed. Zero disables reclaiming.
	Stale time.Duration
}

// NewFileLocker returns a FileLocker on fsys (the OS filesystem if nil).
func NewFileLocker(fsys afero.Fs, stale time.Duration) *FileLocker {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &FileLocker{Fs: fsys, Stale: stale}
}

// MarkerPath returns the marker file used for dest.
func MarkerPath(dest string) string {
	return filepath.Clean(dest) + ".stage-lock"
}

// Lock implements Locker. key is the destination path.
func (l *FileLocker) Lock(_ context.Context, key string) (func() error, error) {
	marker := MarkerPath(key)
	if err := l.Fs.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		return nil, errors.Wrap(err, "create lock directory")
	}

	holder := uuid.NewString()
	f, err := l.create(marker)
	if err != nil && os.IsExist(err) && l.reclaim(marker) {
		f, err = l.create(marker)
	}
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Wrapf(ErrLocked, "%s", marker)
		}
		return nil, errors.Wrap(err, "create lock marker")
	}
	_, werr := fmt.Fprintf(f, "holder=%s pid=%d since=%s\n", holder, os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = l.Fs.Remove(marker)
		return nil, errors.Wrap(werr, "write lock marker")
	}

	return func() error {
		if err := l.Fs.Remove(marker); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}, nil
}

func (l *FileLocker) create(marker string) (afero.File, error) {
	return l.Fs.OpenFile(marker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
}

// reclaim removes marker if it is older than l.Stale.
func (l *FileLocker) reclaim(marker string) bool {
	if l.Stale <= 0 {
		return false
	}
	fi, err := l.Fs.Stat(marker)
	if err != nil || time.Since(fi.ModTime()) < l.Stale {
		return false
	}
	return l.Fs.Remove(marker) == nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker guards destinations with a Redis key, for staging roots that
// several hosts share (an NFS dataset directory, for example).
type RedisLocker struct {
	Client redis.UniversalClient

	// TTL bounds how long a crashed holder keeps the lock.
	// If <= 0, defaults to 6h.
	TTL time.Duration

	// Prefix is prepended to every key. If empty, "stager:lock:".
	Prefix string
}

// NewRedisLocker connects to the Redis server at addr.
func NewRedisLocker(addr string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		TTL:    ttl,
	}
}

// Close closes the Redis client.
func (l *RedisLocker) Close() error {
	return l.Client.Close()
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func() error, error) {
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	k := defaultString(l.Prefix, "stager:lock:") + filepath.Clean(key)
	token := uuid.NewString()

	ok, err := l.Client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis lock")
	}
	if !ok {
		return nil, errors.Wrapf(ErrLocked, "%s", k)
	}
	return func() error {
		// The caller's ctx may already be done when releasing.
		return releaseScript.Run(context.Background(), l.Client, []string{k}, token).Err()
	}, nil
}
