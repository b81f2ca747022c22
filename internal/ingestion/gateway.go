// Package ingestion accepts statement uploads: it enforces the upload policy,
// stores the bytes and records each file as an uploaded bank statement.
package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"CoopLedgerSaas/internal/checksum"
	"CoopLedgerSaas/internal/config"
	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"
	"CoopLedgerSaas/internal/storage"

	"go.uber.org/zap"
)

type Store interface {
	InsertStatements(ctx context.Context, stmts []model.BankStatement) ([]model.BankStatement, error)
	ExistingChecksums(ctx context.Context, checksums []string) (map[string]bool, error)
}

type Blobs interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Upload is one file part of an upload request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Gateway struct {
	store  Store
	blobs  Blobs
	policy config.UploadConfig
	now    func() time.Time
	log    *zap.Logger
}

func NewGateway(s Store, blobs Blobs, policy config.UploadConfig, log *zap.Logger) *Gateway {
	if policy.MaxFiles <= 0 {
		policy.MaxFiles = config.DefaultMaxFiles
	}
	if policy.MaxFileSize <= 0 {
		policy.MaxFileSize = config.DefaultMaxFileSize
	}
	return &Gateway{store: s, blobs: blobs, policy: policy, now: time.Now, log: log}
}

func (g *Gateway) Policy() config.UploadConfig { return g.policy }

// Upload validates every file first and only then writes. A policy violation
// rejects the whole request before any byte is stored or any row created.
func (g *Gateway) Upload(ctx context.Context, uploader string, files []Upload) ([]model.BankStatement, error) {
	if len(files) == 0 {
		return nil, errs.Validation("no files uploaded; attach statements in the 'files' field")
	}
	if len(files) > g.policy.MaxFiles {
		return nil, errs.Validation("too many files: %d uploaded, at most %d allowed", len(files), g.policy.MaxFiles)
	}

	pending := make([]model.BankStatement, 0, len(files))
	seen := map[string]string{}
	for _, f := range files {
		name := cleanName(f.Filename)
		if name == "" {
			return nil, errs.Validation("every file needs a name")
		}
		if len(f.Data) == 0 {
			return nil, errs.Validation("%s: file is empty", name)
		}
		if int64(len(f.Data)) > g.policy.MaxFileSize {
			return nil, errs.Validation("%s: file exceeds the %s limit", name, humanSize(g.policy.MaxFileSize))
		}
		k, err := classify(name, f.ContentType, f.Data)
		if err != nil {
			return nil, err
		}
		sum := checksum.Sum(f.Data)
		if g.policy.RejectDuplicates {
			if prev, dup := seen[sum]; dup {
				return nil, errs.Validation("%s: same content as %s", name, prev)
			}
		}
		seen[sum] = name
		pending = append(pending, model.BankStatement{
			Filename:    name,
			FileType:    k.fileType,
			ContentType: k.contentType,
			SizeBytes:   int64(len(f.Data)),
			Checksum:    sum,
			UploadedBy:  uploader,
			Status:      model.StatementUploaded,
		})
	}

	if g.policy.RejectDuplicates {
		sums := make([]string, len(pending))
		for i, p := range pending {
			sums[i] = p.Checksum
		}
		existing, err := g.store.ExistingChecksums(ctx, sums)
		if err != nil {
			return nil, err
		}
		for _, p := range pending {
			if existing[p.Checksum] {
				return nil, errs.Validation("%s: this statement was already uploaded", p.Filename)
			}
		}
	}

	now := g.now()
	stored := make([]string, 0, len(pending))
	for i := range pending {
		key := storage.NewKey(now, filepath.Ext(pending[i].Filename))
		if err := g.blobs.Put(ctx, key, pending[i].ContentType, files[i].Data); err != nil {
			g.cleanup(ctx, stored)
			return nil, errs.Operation("store uploaded file", err)
		}
		pending[i].StoragePath = key
		stored = append(stored, key)
	}

	created, err := g.store.InsertStatements(ctx, pending)
	if err != nil {
		g.cleanup(ctx, stored)
		return nil, err
	}
	for _, st := range created {
		g.log.Info("statement uploaded",
			zap.Int64("statement_id", st.ID),
			zap.String("filename", st.Filename),
			zap.String("file_type", string(st.FileType)),
			zap.Int64("size_bytes", st.SizeBytes),
			zap.String("uploaded_by", uploader),
		)
	}
	return created, nil
}

// cleanup removes blobs written by a request that did not complete.
func (g *Gateway) cleanup(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, k := range keys {
		if err := g.blobs.Delete(ctx, k); err != nil {
			g.log.Warn("failed to delete orphaned upload", zap.String("key", k), zap.Error(err))
		}
	}
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(filepath.Base(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func humanSize(n int64) string {
	if n%(1<<20) == 0 {
		return fmt.Sprintf("%d MB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}
