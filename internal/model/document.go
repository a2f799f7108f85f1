package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Pipeline status constants
const (
	PipelineUploaded        = "UPLOADED"
	PipelineQueued          = "QUEUED"
	PipelineProcessing      = "PROCESSING"
	PipelineExtractionDone  = "EXTRACTION_DONE"
	PipelineSplitPending    = "SPLIT_PENDING"
	PipelineSplitComplete   = "SPLIT_COMPLETE"
	PipelineFailedRetryable = "FAILED_RETRYABLE"
	PipelineFailedPermanent = "FAILED_PERMANENT"
	PipelineDeadLetter      = "DEAD_LETTER"
)

// Duplicate status constants
const (
	DuplicateNone      = "NONE"
	DuplicateSuspected = "SUSPECTED"
	DuplicateConfirmed = "CONFIRMED"
	DuplicateRejected  = "REJECTED"
)

// ProcessingDocument is an uploaded file moving through extraction and review.
// LockVersion is compared and incremented on every mutation.
type ProcessingDocument struct {
	ID                 uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID           uuid.UUID            `gorm:"type:uuid;not null;index" json:"tenant_id"`
	CompanyID          uuid.UUID            `gorm:"type:uuid;not null;index" json:"company_id"`
	Company            *Company             `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	ParentID           *uuid.UUID           `gorm:"type:uuid;index" json:"parent_id"`
	PageFrom           *int                 `json:"page_from"`
	PageTo             *int                 `json:"page_to"`
	FileName           string               `gorm:"type:varchar(255);not null" json:"file_name"`
	MimeType           string               `gorm:"type:varchar(100);not null" json:"mime_type"`
	FileSize           int64                `gorm:"not null" json:"file_size"`
	FileHash           string               `gorm:"type:varchar(64);not null;index" json:"file_hash"`
	StorageKey         string               `gorm:"type:varchar(512);not null" json:"-"`
	PipelineStatus     string               `gorm:"type:varchar(30);not null;default:UPLOADED;index" json:"pipeline_status"`
	ExtractionAttempts int                  `gorm:"not null;default:0" json:"extraction_attempts"`
	LastError          string               `gorm:"type:text" json:"last_error,omitempty"`
	DuplicateStatus    string               `gorm:"type:varchar(20);not null;default:NONE;index" json:"duplicate_status"`
	DuplicateOfID      *uuid.UUID           `gorm:"type:uuid;index" json:"duplicate_of_id"`
	DuplicateReason    string               `gorm:"type:text" json:"duplicate_reason,omitempty"`
	DuplicateDecidedBy *uuid.UUID           `gorm:"type:uuid" json:"duplicate_decided_by,omitempty"`
	DuplicateDecidedAt *time.Time           `json:"duplicate_decided_at,omitempty"`
	LockVersion        int                  `gorm:"not null;default:0" json:"lock_version"`
	UploadedBy         *uuid.UUID           `gorm:"type:uuid" json:"uploaded_by"`
	Tags               []Tag                `gorm:"many2many:document_tags;joinForeignKey:DocumentID;joinReferences:TagID" json:"tags,omitempty"`
	Revisions          []DocumentRevision   `gorm:"foreignKey:DocumentID" json:"revisions,omitempty"`
	Children           []ProcessingDocument `gorm:"foreignKey:ParentID" json:"children,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
	DeletedAt          gorm.DeletedAt       `gorm:"index" json:"-"`
}

func (d *ProcessingDocument) BeforeCreate(tx *gorm.DB) error {
	ensureID(&d.ID)
	if d.PipelineStatus == "" {
		d.PipelineStatus = PipelineUploaded
	}
	if d.DuplicateStatus == "" {
		d.DuplicateStatus = DuplicateNone
	}
	return nil
}
