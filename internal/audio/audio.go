// Package audio stores uploaded recordings on disk.
package audio

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/hpungsan/jot/internal/errors"
)

// Store writes audio blobs under a single directory.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore returns a Store rooted at dir. maxBytes <= 0 disables the size limit.
func NewStore(dir string, maxBytes int64) *Store {
	return &Store{dir: dir, maxBytes: maxBytes}
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// Save writes r to <dir>/<id><ext> atomically and returns the path. The
// extension comes from filename so the transcriber can infer the format.
// Oversized input fails with PAYLOAD_TOO_LARGE and leaves nothing behind.
func (s *Store) Save(id, filename string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", errors.NewInternal(fmt.Errorf("create audio dir: %w", err))
	}
	path := filepath.Join(s.dir, id+extension(filename))

	src := r
	var lr *limitedReader
	if s.maxBytes > 0 {
		lr = &limitedReader{r: r, remaining: s.maxBytes}
		src = lr
	}
	if err := atomic.WriteFile(path, src); err != nil {
		if lr != nil && lr.exceeded {
			return "", errors.NewPayloadTooLarge(s.maxBytes, s.maxBytes+lr.overflow)
		}
		return "", errors.NewInternal(fmt.Errorf("write audio: %w", err))
	}
	_ = os.Chmod(path, 0600)
	return path, nil
}

// Open returns a reader for a stored blob.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewNotFound("audio", filepath.Base(path))
		}
		return nil, errors.NewInternal(err)
	}
	return f, nil
}

// Remove deletes a stored blob. Missing files are not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.NewInternal(err)
	}
	return nil
}

// extension returns a safe lowercase extension (with dot) or ".bin".
func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > 6 {
		return ".bin"
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".bin"
		}
	}
	return ext
}

var errTooLarge = stderrors.New("audio exceeds size limit")

// limitedReader fails instead of truncating once more than remaining bytes are read.
type limitedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
	overflow  int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		l.exceeded = true
		l.overflow = -l.remaining
		return 0, errTooLarge
	}
	return n, err
}
