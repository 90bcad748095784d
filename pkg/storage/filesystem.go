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

var (
	// ErrNotFound indicates the evidence ref does not resolve to a stored file.
	ErrNotFound = errors.New("evidence not found")
	// ErrTooLarge indicates the stored file exceeds the configured byte limit.
	ErrTooLarge = errors.New("evidence exceeds size limit")
	// ErrInvalidRef indicates the ref escapes the base directory or is malformed.
	ErrInvalidRef = errors.New("invalid evidence reference")
)

// LocalStorage persists evidence files on disk under a base directory.
type LocalStorage struct {
	baseDir  string
	maxBytes int64
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string, maxBytes int64) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./evidence"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, maxBytes: maxBytes}, nil
}

// Save copies from reader into the target ref and returns the ref.
func (s *LocalStorage) Save(ctx context.Context, ref string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare evidence directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create evidence file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(file, src)
	if err != nil {
		return "", fmt.Errorf("write evidence stream: %w", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		_ = os.Remove(path)
		return "", ErrTooLarge
	}
	return ref, nil
}

// Read loads the full content of a stored evidence file.
func (s *LocalStorage) Read(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("stat evidence file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRef, ref)
	}
	if s.maxBytes > 0 && info.Size() > s.maxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, ref)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read evidence file: %w", err)
	}
	return data, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete evidence file: %w", err)
	}
	return nil
}

// Path exposes the underlying path (useful for debugging).
func (s *LocalStorage) Path(ref string) string {
	path, _ := s.resolve(ref)
	return path
}

func (s *LocalStorage) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || filepath.IsAbs(ref) {
		return "", ErrInvalidRef
	}
	cleaned := filepath.Clean(filepath.FromSlash(ref))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.baseDir, cleaned), nil
}
