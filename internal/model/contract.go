package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Contract service status constants
const (
	ServiceActive    = "ACTIVE"
	ServicePending   = "PENDING"
	ServiceCancelled = "CANCELLED"
	ServiceCompleted = "COMPLETED"
)

// Billing cycle constants
const (
	BillingMonthly   = "MONTHLY"
	BillingQuarterly = "QUARTERLY"
	BillingAnnual    = "ANNUAL"
	BillingOneOff    = "ONE_OFF"
)

// Deadline status constants
const (
	DeadlinePending   = "PENDING"
	DeadlineCompleted = "COMPLETED"
	DeadlineWaived    = "WAIVED"
)

// ContractService is a recurring engagement a company provides or receives
type ContractService struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"tenant_id"`
	CompanyID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"company_id"`
	ContactID    *uuid.UUID        `gorm:"type:uuid;index" json:"contact_id"`
	Name         string            `gorm:"type:varchar(255);not null" json:"name"`
	Description  string            `gorm:"type:text" json:"description"`
	Status       string            `gorm:"type:varchar(20);not null;default:PENDING;index" json:"status"`
	BillingCycle string            `gorm:"type:varchar(20);not null" json:"billing_cycle"`
	Amount       decimal.Decimal   `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency     string            `gorm:"type:varchar(3);not null" json:"currency"`
	StartDate    time.Time         `gorm:"type:date;not null" json:"start_date"`
	EndDate      *time.Time        `gorm:"type:date" json:"end_date"`
	StopReason   string            `gorm:"type:text" json:"stop_reason,omitempty"`
	Deadlines    []ServiceDeadline `gorm:"foreignKey:ContractServiceID;constraint:OnDelete:CASCADE" json:"deadlines,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	DeletedAt    gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (s *ContractService) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// ServiceDeadline is a dated obligation attached to a contract service
type ServiceDeadline struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ContractServiceID uuid.UUID  `gorm:"type:uuid;not null;index" json:"contract_service_id"`
	Title             string     `gorm:"type:varchar(255);not null" json:"title"`
	DueDate           time.Time  `gorm:"type:date;not null;index" json:"due_date"`
	Status            string     `gorm:"type:varchar(20);not null;default:PENDING" json:"status"`
	CompletedAt       *time.Time `json:"completed_at"`
	Notes             string     `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (d *ServiceDeadline) BeforeCreate(tx *gorm.DB) error {
	ensureID(&d.ID)
	if d.Status == "" {
		d.Status = DeadlinePending
	}
	return nil
}
