package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"backoffice/internal/config"

	"github.com/shopspring/decimal"
)

const (
	extractPath        = "/v1/extract"
	defaultHTTPTimeout = 60 * time.Second
	maxErrorBody       = 4 << 10
)

// ErrNotConfigured is returned when no extraction endpoint is set
var ErrNotConfigured = errors.New("extraction endpoint not configured")

// Input is the file handed to the extraction model
type Input struct {
	DocumentID   string `json:"document_id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	Content      []byte `json:"content"`
	PageFrom     *int   `json:"page_from,omitempty"`
	PageTo       *int   `json:"page_to,omitempty"`
	HomeCurrency string `json:"home_currency"`
}

// Line is one extracted line item
type Line struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
	TaxCode     string          `json:"tax_code"`
	GSTAmount   decimal.Decimal `json:"gst_amount"`
}

// Result is the header and line items read from a document
type Result struct {
	VendorName     string          `json:"vendor_name"`
	DocumentNumber string          `json:"document_number"`
	DocumentDate   string          `json:"document_date"` // YYYY-MM-DD
	DueDate        string          `json:"due_date"`
	Currency       string          `json:"currency"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	LineItems      []Line          `json:"line_items"`
}

// Extractor turns a stored file into structured fields
type Extractor interface {
	Extract(ctx context.Context, in Input) (*Result, error)
}

// Error carries whether a failed call may be retried
type Error struct {
	Status    int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("extraction failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("extraction failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth another attempt.
// Unknown errors are treated as retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return !errors.Is(err, ErrNotConfigured)
}

// Unconfigured fails every call with ErrNotConfigured, which is never retried
type Unconfigured struct{}

func (Unconfigured) Extract(context.Context, Input) (*Result, error) {
	return nil, ErrNotConfigured
}

type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// New returns an HTTP client, or ErrNotConfigured when no URL is set
func New(cfg config.ExtractionConfig) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type extractRequest struct {
	Model string `json:"model"`
	Input
}

func (c *Client) Extract(ctx context.Context, in Input) (*Result, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(extractRequest{Model: c.model, Input: in}); err != nil {
		return nil, &Error{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+extractPath, &buf)
	if err != nil {
		return nil, &Error{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Retryable: isTransient(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &Error{
			Status:    resp.StatusCode,
			Retryable: retryableStatus(resp.StatusCode),
			Err:       fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Err: fmt.Errorf("invalid extraction response: %w", err)}
	}
	return &out, nil
}

// 5xx and 429 may succeed later; other 4xx will not
func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}
