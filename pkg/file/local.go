package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps objects under baseDir. Keys never resolve outside it.
type LocalStorage struct {
	baseDir string
	baseURL string
}

var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates baseDir if needed. baseURL prefixes public URLs,
// for example "/uploads/".
func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, ErrInvalidConfig
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToGetAbsolutePath, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToCreateDirectory, err)
	}

	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &LocalStorage{baseDir: abs, baseURL: baseURL}, nil
}

// Put writes r to key, removing the partial file on failure.
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	key, err := cleanKey(key)
	if err != nil {
		return Object{}, err
	}
	path, err := s.resolvePath(key)
	if err != nil {
		return Object{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Object{}, fmt.Errorf("%w: %v", ErrFailedToCreateDirectory, err)
	}

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Object{}, fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}

	written, err := io.Copy(dst, r)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err == nil && size > 0 && written != size {
		err = fmt.Errorf("short write: %d of %d bytes", written, size)
	}
	if err != nil {
		_ = os.Remove(path)
		return Object{}, fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}

	return Object{Key: key, Size: written, MIMEType: contentType, URL: s.URL(key)}, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	path, err := s.resolvePath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return fmt.Errorf("%w: %v", ErrFailedToDeleteFile, err)
	}
	return nil
}

func (s *LocalStorage) URL(key string) string {
	return s.baseURL + strings.TrimPrefix(filepath.ToSlash(key), "/")
}

func (s *LocalStorage) resolvePath(key string) (string, error) {
	abs, err := filepath.Abs(filepath.Join(s.baseDir, filepath.Clean(key)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailedToGetAbsolutePath, err)
	}
	if !strings.HasPrefix(abs, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, key)
	}
	return abs, nil
}
