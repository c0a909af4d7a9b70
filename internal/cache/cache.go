// Package cache stores rendered phrases on disk, keyed by the MD5 of the
// text. Entries are raw signed-linear files the host can stream directly:
//
//	<dir>/<md5>.sln    8 kHz
//	<dir>/<md5>.sln16  16 kHz
//
// There is no index, no eviction and no locking; a file that exists is a hit.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nadzzz/saytext/internal/audio"
)

// maxPathLen bounds the cache file path; longer paths disable caching for
// the request instead of failing it.
const maxPathLen = 2048

// Key returns the cache key for text.
func Key(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Store is a directory of cached renderings.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is created on first Promote.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Usable reports whether a cache path for key fits within the path limit.
func (s *Store) Usable(key string) bool {
	return len(s.dir)+len(key)+len(".sln16")+1 <= maxPathLen
}

// Base returns the extension-less path for key, the form the host expects
// when asked to stream a file.
func (s *Store) Base(key string) string {
	return filepath.Join(s.dir, key)
}

// Path returns the cache file path for key at rate.
func (s *Store) Path(key string, rate int) string {
	return s.Base(key) + "." + audio.Ext(rate)
}

// Lookup reports whether a rendering of key at rate exists.
func (s *Store) Lookup(key string, rate int) bool {
	info, err := os.Stat(s.Path(key, rate))
	return err == nil && info.Mode().IsRegular()
}

// Read returns the cached PCM for key at rate.
func (s *Store) Read(key string, rate int) ([]byte, bool) {
	data, err := os.ReadFile(s.Path(key, rate))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Promote copies a freshly rendered file into the cache.
func (s *Store) Promote(src, key string, rate int) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening rendered file: %w", err)
	}
	defer in.Close()

	dst := s.Path(key, rate)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying to cache: %w", err)
	}
	return out.Close()
}

// Write stores PCM for key at rate.
func (s *Store) Write(key string, rate int, pcm []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	return os.WriteFile(s.Path(key, rate), pcm, 0o644)
}
