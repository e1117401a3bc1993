// Package localfs writes batch results to a local directory.
package localfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/results"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// Save writes data under key. The file is created atomically via rename.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) (string, error) {
	if key == "" || strings.Contains(key, "..") || filepath.IsAbs(key) {
		return "", fmt.Errorf("invalid result key %q", key)
	}
	path := filepath.Join(s.basePath, key)

	tmp, err := os.CreateTemp(s.basePath, ".result-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename result: %w", err)
	}
	return path, nil
}

// SaveJSON writes v as indented UTF-8 JSON.
func (s *Storage) SaveJSON(ctx context.Context, key string, v any) (string, error) {
	pr, pw := io.Pipe()
	go func() {
		enc := json.NewEncoder(pw)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		pw.CloseWithError(enc.Encode(v))
	}()
	path, err := s.Save(ctx, key, pr)
	_ = pr.Close()
	return path, err
}
