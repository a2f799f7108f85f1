package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Revision status constants
const (
	RevisionDraft      = "DRAFT"
	RevisionApproved   = "APPROVED"
	RevisionSuperseded = "SUPERSEDED"
)

// Revision source constants
const (
	RevisionSourceExtraction = "EXTRACTION"
	RevisionSourceManual     = "MANUAL"
)

// Validation issue severities
const (
	SeverityError   = "ERROR"
	SeverityWarning = "WARNING"
)

// ValidationIssue is one reconciliation finding stored on a revision
type ValidationIssue struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

// DocumentRevision is a versioned snapshot of the extracted header and line items.
// At most one revision per document is DRAFT or APPROVED; SUPERSEDED rows are history.
type DocumentRevision struct {
	ID               uuid.UUID                            `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID         uuid.UUID                            `gorm:"type:uuid;not null;index" json:"tenant_id"`
	DocumentID       uuid.UUID                            `gorm:"type:uuid;not null;uniqueIndex:idx_revisions_document_number;uniqueIndex:idx_revisions_one_active,where:status <> 'SUPERSEDED'" json:"document_id"`
	RevisionNumber   int                                  `gorm:"not null;uniqueIndex:idx_revisions_document_number" json:"revision_number"`
	Status           string                               `gorm:"type:varchar(20);not null;index" json:"status"`
	Source           string                               `gorm:"type:varchar(20);not null" json:"source"`
	VendorName       string                               `gorm:"type:varchar(255)" json:"vendor_name"`
	ContactID        *uuid.UUID                           `gorm:"type:uuid;index" json:"contact_id"`
	DocumentNumber   string                               `gorm:"type:varchar(100);index" json:"document_number"`
	DocumentDate     *time.Time                           `gorm:"type:date" json:"document_date"`
	DueDate          *time.Time                           `gorm:"type:date" json:"due_date"`
	Currency         string                               `gorm:"type:varchar(3);not null" json:"currency"`
	HomeCurrency     string                               `gorm:"type:varchar(3);not null" json:"home_currency"`
	ExchangeRate     decimal.Decimal                      `gorm:"type:decimal(18,8);not null" json:"exchange_rate"`
	Subtotal         decimal.Decimal                      `gorm:"type:decimal(18,2);not null" json:"subtotal"`
	TaxAmount        decimal.Decimal                      `gorm:"type:decimal(18,2);not null" json:"tax_amount"`
	TotalAmount      decimal.Decimal                      `gorm:"type:decimal(18,2);not null" json:"total_amount"`
	HomeSubtotal     decimal.Decimal                      `gorm:"type:decimal(18,2);not null" json:"home_subtotal"`
	HomeTaxAmount    decimal.Decimal                      `gorm:"type:decimal(18,2);not null" json:"home_tax_amount"`
	HomeTotal        decimal.Decimal                      `gorm:"type:decimal(18,2);not null" json:"home_total"`
	Notes            string                               `gorm:"type:text" json:"notes"`
	ValidationIssues datatypes.JSONSlice[ValidationIssue] `json:"validation_issues"`
	LineItems        []LineItem                           `gorm:"foreignKey:RevisionID;constraint:OnDelete:CASCADE" json:"line_items"`
	CreatedBy        *uuid.UUID                           `gorm:"type:uuid" json:"created_by"`
	ApprovedBy       *uuid.UUID                           `gorm:"type:uuid" json:"approved_by"`
	ApprovedAt       *time.Time                           `json:"approved_at"`
	SupersededAt     *time.Time                           `json:"superseded_at"`
	CreatedAt        time.Time                            `json:"created_at"`
	UpdatedAt        time.Time                            `json:"updated_at"`
}

func (r *DocumentRevision) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// HasBlockingIssues reports whether any stored issue is an ERROR
func (r *DocumentRevision) HasBlockingIssues() bool {
	for _, issue := range r.ValidationIssues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// LineItem is one row of a revision. Home values are derived from the document
// currency amounts unless the matching override flag is set.
type LineItem struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID             uuid.UUID       `gorm:"type:uuid;not null;index" json:"tenant_id"`
	RevisionID           uuid.UUID       `gorm:"type:uuid;not null;index" json:"revision_id"`
	LineNumber           int             `gorm:"not null" json:"line_number"`
	Description          string          `gorm:"type:text" json:"description"`
	Quantity             decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitPrice            decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	Amount               decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	TaxCode              string          `gorm:"type:varchar(20)" json:"tax_code"`
	GSTAmount            decimal.Decimal `gorm:"column:gst_amount;type:decimal(18,2);not null" json:"gst_amount"`
	HomeAmount           decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"home_amount"`
	HomeGSTAmount        decimal.Decimal `gorm:"column:home_gst_amount;type:decimal(18,2);not null" json:"home_gst_amount"`
	IsHomeAmountOverride bool            `gorm:"not null;default:false" json:"is_home_amount_override"`
	IsHomeGSTOverride    bool            `gorm:"column:is_home_gst_override;not null;default:false" json:"is_home_gst_override"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (l *LineItem) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
