// Package blob provides the content-addressed archive for raw document bytes.
//
// Two backends exist: a local filesystem rooted at a configured directory and
// an S3-compatible object store (AWS S3 or MinIO). Writes are atomic; reads
// by path are idempotent. The store does not deduplicate across documents;
// the metadata store's source_hash column is the canonical dedup key.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Store archives raw document bytes under timestamped per-document paths.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save writes content under {root}/{docID}/{timestamp}.{ext} and returns
	// the storage path. ext is "html" or "pdf".
	Save(ctx context.Context, docID string, content []byte, ext string) (string, error)

	// Load reads the bytes previously stored at path.
	Load(ctx context.Context, path string) ([]byte, error)

	// Exists reports whether path is present in the store.
	Exists(ctx context.Context, path string) (bool, error)
}

// Hash returns the lowercase hex SHA-256 of content. It is the content
// address recorded as source_hash on document versions.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// objectName builds the timestamped object name for a new snapshot.
func objectName(ext string) string {
	return fmt.Sprintf("%s.%s", time.Now().UTC().Format("20060102T150405"), ext)
}

// Config selects and configures a blob store backend.
type Config struct {
	Type string // "local" or "s3"

	// Local backend.
	Root string

	// S3 backend. Endpoint is set for MinIO; empty means AWS.
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// New creates a blob store for the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStore(cfg.Root)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("blob: unknown storage type %q", cfg.Type)
	}
}
