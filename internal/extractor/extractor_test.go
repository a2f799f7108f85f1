package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"backoffice/internal/config"
)

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(config.ExtractionConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestExtractSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != extractPath {
			t.Errorf("Expected path %s, got %s", extractPath, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer auth header, got %q", got)
		}
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Expected JSON body, got %v", err)
		}
		if req.Model != "doc-model" || string(req.Content) != "%PDF" {
			t.Errorf("Expected model and content to be forwarded, got %q %q", req.Model, req.Content)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"vendor_name":"Acme","document_number":"INV-1","currency":"USD","total_amount":"10.90","line_items":[{"description":"x","quantity":1,"unit_price":"10","amount":"10","gst_amount":"0.90"}]}`))
	}))
	defer server.Close()

	c, err := New(config.ExtractionConfig{APIURL: server.URL + "/", APIKey: "secret", Model: "doc-model"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	res, err := c.Extract(context.Background(), Input{FileName: "a.pdf", Content: []byte("%PDF")})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.VendorName != "Acme" || res.TotalAmount.String() != "10.9" || len(res.LineItems) != 1 {
		t.Errorf("Expected decoded result, got %+v", res)
	}
}

func TestExtractStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error", http.StatusBadGateway, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"unprocessable", http.StatusUnprocessableEntity, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			c, _ := New(config.ExtractionConfig{APIURL: server.URL})
			_, err := c.Extract(context.Background(), Input{})
			if err == nil {
				t.Fatal("Expected an error")
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("Expected retryable=%v for %d, got %v", tt.retryable, tt.status, !tt.retryable)
			}
			var e *Error
			if !errors.As(err, &e) || e.Status != tt.status {
				t.Errorf("Expected *Error with status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestExtractConnectionRefusedIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c, _ := New(config.ExtractionConfig{APIURL: url})
	_, err := c.Extract(context.Background(), Input{})
	if err == nil || !IsRetryable(err) {
		t.Errorf("Expected a retryable error, got %v", err)
	}
}

func TestIsRetryableNotConfigured(t *testing.T) {
	if IsRetryable(ErrNotConfigured) {
		t.Error("Expected ErrNotConfigured to be permanent")
	}
}
