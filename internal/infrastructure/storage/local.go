package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalImageStore writes avatars below Dir, which the HTTP server exposes
// at BaseURL + "/img/users".
type LocalImageStore struct {
	Dir     string // e.g. public/img/users
	BaseURL string
}

func NewLocalImageStore(publicDir, baseURL string) (*LocalImageStore, error) {
	dir := filepath.Join(publicDir, "img", "users")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &LocalImageStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalImageStore) urlPrefix() string { return s.BaseURL + "/img/users/" }

func (s *LocalImageStore) Save(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid image name %q", name)
	}
	dst := filepath.Join(s.Dir, name)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return s.urlPrefix() + name, nil
}

// Remove deletes a file this store produced. URLs outside the store and
// already missing files are ignored.
func (s *LocalImageStore) Remove(_ context.Context, url string) error {
	if !strings.HasPrefix(url, s.urlPrefix()) {
		return nil
	}
	name := strings.TrimPrefix(url, s.urlPrefix())
	if name == "" || name != filepath.Base(name) {
		return nil
	}
	err := os.Remove(filepath.Join(s.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
