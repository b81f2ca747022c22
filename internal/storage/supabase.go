package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"CoopLedgerSaas/internal/config"

	storage_go "github.com/supabase-community/storage-go"
)

type supabaseAPI interface {
	UploadFile(bucketID, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
	DownloadFile(bucketID, filePath string, urlOptions ...storage_go.UrlOptions) ([]byte, error)
	RemoveFile(bucketID string, paths []string) ([]storage_go.FileUploadResponse, error)
}

// Supabase stores objects in a Supabase storage bucket with the service role key.
type Supabase struct {
	client supabaseAPI
	bucket string
}

func NewSupabase(cfg config.SupabaseConfig) *Supabase {
	endpoint := strings.TrimRight(cfg.URL, "/") + "/storage/v1"
	headers := map[string]string{"apikey": cfg.ServiceKey}
	return &Supabase{
		client: storage_go.NewClient(endpoint, cfg.ServiceKey, headers),
		bucket: cfg.Bucket,
	}
}

// The storage client has no context support, so cancellation is checked
// before each call.
func (s *Supabase) Put(ctx context.Context, key, contentType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	upsert := false
	_, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("supabase upload failed (bucket %s, key %s): %w", s.bucket, key, err)
	}
	return nil
}

func (s *Supabase) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.client.DownloadFile(s.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("supabase download failed (bucket %s, key %s): %w", s.bucket, key, err)
	}
	return data, nil
}

func (s *Supabase) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucket, []string{key}); err != nil {
		return fmt.Errorf("supabase delete failed (bucket %s, key %s): %w", s.bucket, key, err)
	}
	return nil
}
