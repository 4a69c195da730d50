package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore archives documents on the local filesystem under a root
// directory. Writes go to a temp file in the target directory followed by a
// rename, so a crash never leaves a partial object at a final path.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed and returns the store.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blob: local root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

// Save writes content to {root}/{docID}/{timestamp}.{ext} atomically.
func (s *LocalStore) Save(ctx context.Context, docID string, content []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, docID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("blob: create dir %s: %w", dir, err)
	}

	final := filepath.Join(dir, objectName(ext))

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("blob: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("blob: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("blob: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("blob: rename into place: %w", err)
	}
	return final, nil
}

// Load reads the bytes stored at path.
func (s *LocalStore) Load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", path, err)
	}
	return content, nil
}

// Exists reports whether path is present.
func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("blob: stat %s: %w", path, err)
	}
	return true, nil
}
