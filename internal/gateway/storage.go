// ABOUTME: Opens the configured blob backend for the document store
// ABOUTME: Shared by the server and the inspect command

package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/docwatch/internal/blob"
	"github.com/2389/docwatch/internal/config"
)

// OpenStorage opens the blob backend selected by cfg.Backend.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (blob.Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		s, err := blob.NewFileStore(cfg.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("opening file storage: %w", err)
		}
		return s, nil
	case config.BackendSQLite:
		s, err := blob.NewSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite storage: %w", err)
		}
		return s, nil
	case config.BackendS3:
		s, err := blob.NewS3Store(ctx, blob.S3Options{
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening s3 storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
