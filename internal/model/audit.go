package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionCreate  = "CREATE"
	ActionUpdate  = "UPDATE"
	ActionDelete  = "DELETE"
	ActionLogin   = "LOGIN"
	ActionLogout  = "LOGOUT"
	ActionUpload  = "UPLOAD"
	ActionExport  = "EXPORT"
	ActionAssign  = "ASSIGN"
	ActionRevoke  = "REVOKE"
	ActionApprove = "APPROVE"

	ActionExtractionQueued    = "EXTRACTION_QUEUED"
	ActionExtractionCompleted = "EXTRACTION_COMPLETED"
	ActionExtractionFailed    = "EXTRACTION_FAILED"
	ActionRevisionCreated     = "REVISION_CREATED"
	ActionRevisionUpdated     = "REVISION_UPDATED"
	ActionRevisionDiscarded   = "REVISION_DISCARDED"
	ActionDocumentSplit       = "DOCUMENT_SPLIT"
	ActionDuplicateDecision   = "DUPLICATE_DECISION"
	ActionTagsChanged         = "TAGS_CHANGED"
	ActionStatusChanged       = "STATUS_CHANGED"
	ActionServiceStopped      = "SERVICE_STOPPED"
)

// Entity types recorded on audit rows
const (
	EntityTenant          = "Tenant"
	EntityCompany         = "Company"
	EntityContact         = "Contact"
	EntityUser            = "User"
	EntityRole            = "Role"
	EntityDocument        = "ProcessingDocument"
	EntityRevision        = "DocumentRevision"
	EntityTag             = "Tag"
	EntityContractService = "ContractService"
	EntityServiceDeadline = "ServiceDeadline"
	EntityTaxCode         = "TaxCode"
)

// ErrAuditImmutable is returned by the ORM hooks on any update or delete of an audit row
var ErrAuditImmutable = errors.New("audit log entries are immutable")

// AuditLog tracks who changed what, and when. Rows are append-only.
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID   *uuid.UUID     `gorm:"type:uuid;index" json:"tenant_id"` // nil for platform-level actions
	UserID     *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"`   // nil for background jobs
	User       *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CompanyID  *uuid.UUID     `gorm:"type:uuid;index" json:"company_id"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string         `gorm:"type:varchar(50);not null;index" json:"entity_type"`
	EntityID   string         `gorm:"type:varchar(50);index" json:"entity_id"`
	Changes    datatypes.JSON `json:"changes"` // {"before": ..., "after": ...}
	RequestID  string         `gorm:"type:varchar(64)" json:"request_id"`
	IPAddress  string         `gorm:"type:varchar(64)" json:"ip_address"`
	UserAgent  string         `gorm:"type:varchar(512)" json:"user_agent"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditImmutable
}

func (a *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditImmutable
}
