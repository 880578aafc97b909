// Package storage provides a filesystem implementation of the artifact
// upload contracts for development and test environments where no object
// storage service is available.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fossapp/internal/generate"
)

// FileStore writes artifacts onto the local filesystem. It implements
// generate.Uploader (files under uploads/) and generate.BucketStore
// (buckets become directories).
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Upload implements generate.Uploader; links are file:// URLs.
func (s *FileStore) Upload(ctx context.Context, files []generate.Asset) (*generate.UploadResult, error) {
	res := &generate.UploadResult{}
	for _, f := range files {
		link, err := s.write(ctx, filepath.ToSlash(filepath.Join("uploads", f.Name)), f.Data)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		res.Links = append(res.Links, link)
	}
	return res, nil
}

// Put implements generate.BucketStore; the bucket name becomes a directory
// under the storage root.
func (s *FileStore) Put(ctx context.Context, bucket, key string, data []byte) (string, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return "", errors.New("storage: bucket is required")
	}
	return s.write(ctx, filepath.ToSlash(filepath.Join(bucket, key)), data)
}

// write persists the bytes at the given relative key and returns a file://
// link. Keys are cleaned to prevent directory traversal.
func (s *FileStore) write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return "file://" + filepath.ToSlash(fullPath), nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
