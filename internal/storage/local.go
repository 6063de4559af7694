package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrObjectNotFound is returned when a stored object does not exist
var ErrObjectNotFound = errors.New("object not found")

// LocalStore keeps uploaded documents in a directory on disk.
type LocalStore struct {
	root    string
	urlBase string
}

// NewLocalStore creates root if needed. Download URLs are urlBase followed by
// the escaped key; the HTTP server serves root under that prefix.
func NewLocalStore(root, urlBase string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalStore{root: abs, urlBase: strings.TrimRight(urlBase, "/")}, nil
}

// Root returns the directory objects are stored under.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "\x00") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Put writes the object atomically by renaming a temporary file into place.
func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("failed to write object: wrote %d of %d bytes", written, size)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}
	return nil
}

func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes the object and any directories it leaves empty. Deleting a
// missing object is not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	for dir := filepath.Dir(p); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

func (s *LocalStore) DownloadURL(ctx context.Context, key string) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	segments := strings.Split(strings.TrimPrefix(path.Clean("/"+key), "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.urlBase + "/" + strings.Join(segments, "/"), nil
}
