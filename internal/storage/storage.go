package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"CoopLedgerSaas/internal/config"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// BlobStore persists uploaded statement bytes under opaque keys.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns a collision-resistant object key of the form
// bankstatements/YYYY/MM/DD/<uuid><ext>.
func NewKey(now time.Time, ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join("bankstatements", now.UTC().Format("2006/01/02"), uuid.NewString()+ext)
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg.LocalRoot)
	case "s3":
		return NewS3(ctx, cfg.S3)
	case "supabase":
		return NewSupabase(cfg.Supabase), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
