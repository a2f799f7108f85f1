package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"backoffice/internal/config"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned when a key has no stored object
var ErrObjectNotFound = errors.New("object not found")

// ErrPresignUnsupported is returned by drivers that can only stream
var ErrPresignUnsupported = errors.New("presigned urls not supported by this driver")

// ObjectStore keeps uploaded document files
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	PresignedURL(ctx context.Context, key, fileName string) (string, error)
	Delete(ctx context.Context, key string) error
}

// New picks the driver named in the configuration
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Driver {
	case "minio":
		store, err := NewMinioStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "local", "":
		return NewLocalStore(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// DocumentKey builds tenants/<tenant>/companies/<company>/<id><ext>
func DocumentKey(tenantID, companyID, documentID uuid.UUID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return path.Join("tenants", tenantID.String(), "companies", companyID.String(), documentID.String()+ext)
}
