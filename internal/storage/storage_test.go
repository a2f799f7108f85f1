package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"backoffice/internal/config"

	"github.com/google/uuid"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	ctx := context.Background()
	key := "tenants/a/companies/b/file.pdf"

	if err := store.Put(ctx, key, strings.NewReader("%PDF-1.7"), 8, "application/pdf"); err != nil {
		t.Fatalf("Expected put to succeed, got %v", err)
	}

	rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Expected get to succeed, got %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "%PDF-1.7" {
		t.Errorf("Expected stored body, got %q", body)
	}

	if _, err := store.PresignedURL(ctx, key, "file.pdf"); !errors.Is(err, ErrPresignUnsupported) {
		t.Errorf("Expected ErrPresignUnsupported, got %v", err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Expected delete to succeed, got %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Expected ErrObjectNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Expected deleting a missing object to be a no-op, got %v", err)
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	err = store.Put(context.Background(), "../../etc/passwd", strings.NewReader("x"), 1, "text/plain")
	if err == nil {
		t.Error("Expected an error for a key outside the root")
	}
}

func TestDocumentKey(t *testing.T) {
	tenant := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	company := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	doc := uuid.MustParse("33333333-3333-3333-3333-333333333333")

	tests := []struct {
		name     string
		fileName string
		expected string
	}{
		{"keeps extension", "Invoice.PDF", "tenants/11111111-1111-1111-1111-111111111111/companies/22222222-2222-2222-2222-222222222222/33333333-3333-3333-3333-333333333333.pdf"},
		{"no extension", "scan", "tenants/11111111-1111-1111-1111-111111111111/companies/22222222-2222-2222-2222-222222222222/33333333-3333-3333-3333-333333333333"},
		{"overlong extension dropped", "a.averyveryverylongext", "tenants/11111111-1111-1111-1111-111111111111/companies/22222222-2222-2222-2222-222222222222/33333333-3333-3333-3333-333333333333"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DocumentKey(tenant, company, doc, tt.fileName); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), config.StorageConfig{Driver: "ftp"}); err == nil {
		t.Error("Expected an error for an unknown driver")
	}
}

func TestNewMinioStore(t *testing.T) {
	store, err := NewMinioStore(config.StorageConfig{
		MinioEndpoint:  "localhost:9000",
		MinioAccessKey: "test",
		MinioSecretKey: "test",
		MinioBucket:    "documents",
	})
	if err != nil {
		t.Fatalf("Expected client creation to succeed, got %v", err)
	}
	if store.expiry <= 0 {
		t.Error("Expected a default presign expiry")
	}
}
