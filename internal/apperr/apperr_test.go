package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestHTTPStatus(t *testing.T) {
	tests := map[Code]int{
		CodeAuthenticationRequired: http.StatusUnauthorized,
		CodePermissionDenied:       http.StatusForbidden,
		CodeNotFound:               http.StatusNotFound,
		CodeValidation:             http.StatusBadRequest,
		CodeConflict:               http.StatusConflict,
		CodeInternal:               http.StatusInternalServerError,
		CodeRateLimitExceeded:      http.StatusTooManyRequests,
		CodeServiceUnavailable:     http.StatusServiceUnavailable,
	}
	for code, want := range tests {
		if got := HTTPStatus(code); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}

func TestClassifyPassesTypedErrors(t *testing.T) {
	orig := Conflict("document was modified by another user")
	wrapped := fmt.Errorf("update failed: %w", orig)

	got := Classify(wrapped)
	if got != orig {
		t.Fatalf("Expected the typed error to pass through, got %+v", got)
	}
	if !errors.Is(wrapped, ErrConflict) {
		t.Error("Expected errors.Is to match the conflict sentinel")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Error("Did not expect errors.Is to match the not-found sentinel")
	}
}

func TestClassifyDatabaseErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"record not found", fmt.Errorf("load: %w", gorm.ErrRecordNotFound), CodeNotFound},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, CodeConflict},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "idx_companies_tenant_uen"}, CodeConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, CodeValidation},
		{"not null", &pgconn.PgError{Code: "23502", ColumnName: "name"}, CodeValidation},
		{"connection failure", &pgconn.PgError{Code: "08006"}, CodeServiceUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, CodeServiceUnavailable},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, CodeInternal},
		{"sqlite unique", errors.New("UNIQUE constraint failed: companies.tenant_id, companies.uen"), CodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Code != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got.Code)
			}
		})
	}
}

func TestClassifyByMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want Code
	}{
		{"authentication required", CodeAuthenticationRequired},
		{"access denied for company", CodePermissionDenied},
		{"tag not found", CodeNotFound},
		{"email already exists", CodeConflict},
		{"invalid exchange rate", CodeValidation},
		{"rate limit exceeded", CodeRateLimitExceeded},
		{"something exploded", CodeInternal},
	}
	for _, tt := range tests {
		if got := Classify(errors.New(tt.msg)).Code; got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Expected nil for nil error")
	}
}
