package repository

import (
	"context"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RevisionRepository interface {
	Create(ctx context.Context, rev *model.DocumentRevision) error
	FindByID(ctx context.Context, documentID, revisionID uuid.UUID) (*model.DocumentRevision, error)
	FindCurrent(ctx context.Context, documentID uuid.UUID) (*model.DocumentRevision, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]model.DocumentRevision, error)
	NextNumber(ctx context.Context, documentID uuid.UUID) (int, error)
	SaveDraft(ctx context.Context, rev *model.DocumentRevision) error
	Transition(ctx context.Context, revisionID uuid.UUID, from, to string, updates map[string]interface{}) error
	DeleteDraft(ctx context.Context, revisionID uuid.UUID) error
}

type revisionRepository struct {
	db *gorm.DB
}

func NewRevisionRepository(db *gorm.DB) RevisionRepository {
	return &revisionRepository{db: db}
}

func orderedLines(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }

func (r *revisionRepository) Create(ctx context.Context, rev *model.DocumentRevision) error {
	return GetDB(ctx, r.db).Create(rev).Error
}

func (r *revisionRepository) FindByID(ctx context.Context, documentID, revisionID uuid.UUID) (*model.DocumentRevision, error) {
	var rev model.DocumentRevision
	if err := GetDB(ctx, r.db).
		Preload("LineItems", orderedLines).
		Where("document_id = ?", documentID).
		First(&rev, "id = ?", revisionID).Error; err != nil {
		return nil, err
	}
	return &rev, nil
}

// FindCurrent returns the single DRAFT or APPROVED revision of a document
func (r *revisionRepository) FindCurrent(ctx context.Context, documentID uuid.UUID) (*model.DocumentRevision, error) {
	var rev model.DocumentRevision
	if err := GetDB(ctx, r.db).
		Preload("LineItems", orderedLines).
		Where("document_id = ? AND status <> ?", documentID, model.RevisionSuperseded).
		Order("revision_number DESC").
		First(&rev).Error; err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *revisionRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]model.DocumentRevision, error) {
	var revs []model.DocumentRevision
	if err := GetDB(ctx, r.db).
		Where("document_id = ?", documentID).
		Order("revision_number DESC").
		Find(&revs).Error; err != nil {
		return nil, err
	}
	return revs, nil
}

func (r *revisionRepository) NextNumber(ctx context.Context, documentID uuid.UUID) (int, error) {
	var max int
	if err := GetDB(ctx, r.db).Model(&model.DocumentRevision{}).
		Where("document_id = ?", documentID).
		Select("COALESCE(MAX(revision_number), 0)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max + 1, nil
}

// SaveDraft rewrites a DRAFT revision's header and replaces its line items.
// A revision that is no longer DRAFT is left untouched and reported as a conflict.
func (r *revisionRepository) SaveDraft(ctx context.Context, rev *model.DocumentRevision) error {
	db := GetDB(ctx, r.db)
	res := db.Model(&model.DocumentRevision{}).
		Where("id = ? AND status = ?", rev.ID, model.RevisionDraft).
		Updates(map[string]interface{}{
			"vendor_name":       rev.VendorName,
			"contact_id":        rev.ContactID,
			"document_number":   rev.DocumentNumber,
			"document_date":     rev.DocumentDate,
			"due_date":          rev.DueDate,
			"currency":          rev.Currency,
			"home_currency":     rev.HomeCurrency,
			"exchange_rate":     rev.ExchangeRate,
			"subtotal":          rev.Subtotal,
			"tax_amount":        rev.TaxAmount,
			"total_amount":      rev.TotalAmount,
			"home_subtotal":     rev.HomeSubtotal,
			"home_tax_amount":   rev.HomeTaxAmount,
			"home_total":        rev.HomeTotal,
			"notes":             rev.Notes,
			"validation_issues": rev.ValidationIssues,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("revision is immutable")
	}

	if err := db.Where("revision_id = ?", rev.ID).Delete(&model.LineItem{}).Error; err != nil {
		return err
	}
	for i := range rev.LineItems {
		rev.LineItems[i].ID = uuid.Nil
		rev.LineItems[i].RevisionID = rev.ID
		rev.LineItems[i].TenantID = rev.TenantID
	}
	if len(rev.LineItems) == 0 {
		return nil
	}
	return db.Create(&rev.LineItems).Error
}

// Transition moves a revision between statuses only if it is still in from
func (r *revisionRepository) Transition(ctx context.Context, revisionID uuid.UUID, from, to string, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now()
	res := GetDB(ctx, r.db).Model(&model.DocumentRevision{}).
		Where("id = ? AND status = ?", revisionID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("revision is no longer %s", from)
	}
	return nil
}

func (r *revisionRepository) DeleteDraft(ctx context.Context, revisionID uuid.UUID) error {
	db := GetDB(ctx, r.db)
	res := db.Where("id = ? AND status = ?", revisionID, model.RevisionDraft).Delete(&model.DocumentRevision{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("only a DRAFT revision can be discarded")
	}
	return db.Where("revision_id = ?", revisionID).Delete(&model.LineItem{}).Error
}
