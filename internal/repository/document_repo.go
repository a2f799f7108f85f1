package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentFilter struct {
	Scopes          []Scope
	CompanyID       *uuid.UUID
	PipelineStatus  string
	DuplicateStatus string
	TagID           *uuid.UUID
	Search          string
	ParentID        *uuid.UUID
	TopLevelOnly    bool
	Page            int
	Limit           int
}

// ExportFilter selects approved revisions for the spreadsheet export
type ExportFilter struct {
	Scopes    []Scope
	CompanyID *uuid.UUID
	From      *time.Time
	To        *time.Time
	TagID     *uuid.UUID
}

// ExportRow is an approved revision with its document and company
type ExportRow struct {
	Document model.ProcessingDocument
	Revision model.DocumentRevision
	Company  model.Company
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *model.ProcessingDocument) error
	FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.ProcessingDocument, error)
	FindDetail(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.ProcessingDocument, error)
	List(ctx context.Context, filter DocumentFilter) ([]model.ProcessingDocument, int64, error)
	UpdateWithLock(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]interface{}) (int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from string, updates map[string]interface{}) error
	SoftDeleteWithLock(ctx context.Context, id uuid.UUID, expectedVersion int) error
	FindByHash(ctx context.Context, companyID uuid.UUID, hash string, excludeID uuid.UUID) (*model.ProcessingDocument, error)
	FindByVendorAndNumber(ctx context.Context, companyID uuid.UUID, vendor, number string, excludeID uuid.UUID) (*model.ProcessingDocument, error)
	ListExportRows(ctx context.Context, filter ExportFilter) ([]ExportRow, error)
	ListByPipelineStatus(ctx context.Context, statuses []string, limit int) ([]model.ProcessingDocument, error)
}

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.ProcessingDocument) error {
	return GetDB(ctx, r.db).Omit("Tags", "Revisions", "Children", "Company").Create(doc).Error
}

func (r *documentRepository) FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.ProcessingDocument, error) {
	var doc model.ProcessingDocument
	if err := GetDB(ctx, r.db).Scopes(scopes...).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindDetail loads the document with company, tags and split children
func (r *documentRepository) FindDetail(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.ProcessingDocument, error) {
	var doc model.ProcessingDocument
	if err := GetDB(ctx, r.db).
		Scopes(scopes...).
		Preload("Company").
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		Preload("Children", func(db *gorm.DB) *gorm.DB { return db.Order("page_from ASC") }).
		First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) List(ctx context.Context, filter DocumentFilter) ([]model.ProcessingDocument, int64, error) {
	var docs []model.ProcessingDocument
	var total int64

	query := GetDB(ctx, r.db).Model(&model.ProcessingDocument{}).Scopes(filter.Scopes...)
	if filter.CompanyID != nil {
		query = query.Where("processing_documents.company_id = ?", *filter.CompanyID)
	}
	if filter.PipelineStatus != "" {
		query = query.Where("processing_documents.pipeline_status = ?", filter.PipelineStatus)
	}
	if filter.DuplicateStatus != "" {
		query = query.Where("processing_documents.duplicate_status = ?", filter.DuplicateStatus)
	}
	if filter.ParentID != nil {
		query = query.Where("processing_documents.parent_id = ?", *filter.ParentID)
	} else if filter.TopLevelOnly {
		query = query.Where("processing_documents.parent_id IS NULL")
	}
	if filter.TagID != nil {
		query = query.Where("EXISTS (SELECT 1 FROM document_tags dt WHERE dt.document_id = processing_documents.id AND dt.tag_id = ?)", *filter.TagID)
	}
	if filter.Search != "" {
		p := likePattern(strings.ToLower(filter.Search))
		query = query.Where(`LOWER(processing_documents.file_name) LIKE ? OR EXISTS (
			SELECT 1 FROM document_revisions dr
			WHERE dr.document_id = processing_documents.id AND dr.status <> ?
			AND (LOWER(dr.vendor_name) LIKE ? OR LOWER(dr.document_number) LIKE ?))`,
			p, model.RevisionSuperseded, p, p)
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.
		Preload("Tags").
		Scopes(paginate(filter.Page, filter.Limit)).
		Order("processing_documents.created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// UpdateWithLock applies updates only when the stored lock_version still matches,
// incrementing it in the same statement. It returns the new version.
func (r *documentRepository) UpdateWithLock(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]interface{}) (int, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["lock_version"] = gorm.Expr("lock_version + 1")
	updates["updated_at"] = time.Now()

	db := GetDB(ctx, r.db)
	res := db.Model(&model.ProcessingDocument{}).
		Where("id = ? AND lock_version = ?", id, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, r.lockFailure(ctx, id, expectedVersion)
	}
	return expectedVersion + 1, nil
}

// UpdateStatus moves a document out of an expected pipeline status without a
// client-supplied lock version. Background jobs use it; lock_version still advances.
func (r *documentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from string, updates map[string]interface{}) error {
	updates["lock_version"] = gorm.Expr("lock_version + 1")
	updates["updated_at"] = time.Now()
	res := GetDB(ctx, r.db).Model(&model.ProcessingDocument{}).
		Where("id = ? AND pipeline_status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("document is no longer %s", from)
	}
	return nil
}

func (r *documentRepository) SoftDeleteWithLock(ctx context.Context, id uuid.UUID, expectedVersion int) error {
	res := GetDB(ctx, r.db).
		Where("id = ? AND lock_version = ?", id, expectedVersion).
		Delete(&model.ProcessingDocument{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.lockFailure(ctx, id, expectedVersion)
	}
	return nil
}

func (r *documentRepository) lockFailure(ctx context.Context, id uuid.UUID, expectedVersion int) error {
	var current model.ProcessingDocument
	if err := GetDB(ctx, r.db).Select("id", "lock_version").First(&current, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("document")
		}
		return err
	}
	return apperr.Conflict("document was modified by another user").WithDetails(map[string]int{
		"expected_lock_version": expectedVersion,
		"current_lock_version":  current.LockVersion,
	})
}

func (r *documentRepository) FindByHash(ctx context.Context, companyID uuid.UUID, hash string, excludeID uuid.UUID) (*model.ProcessingDocument, error) {
	var doc model.ProcessingDocument
	if err := GetDB(ctx, r.db).
		Where("company_id = ? AND file_hash = ? AND id <> ? AND parent_id IS NULL", companyID, hash, excludeID).
		Order("created_at ASC").
		First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByVendorAndNumber finds another live document of the company whose
// current revision carries the same vendor and document number
func (r *documentRepository) FindByVendorAndNumber(ctx context.Context, companyID uuid.UUID, vendor, number string, excludeID uuid.UUID) (*model.ProcessingDocument, error) {
	var doc model.ProcessingDocument
	if err := GetDB(ctx, r.db).
		Joins("JOIN document_revisions dr ON dr.document_id = processing_documents.id").
		Where("processing_documents.company_id = ? AND processing_documents.id <> ?", companyID, excludeID).
		Where("dr.status <> ? AND LOWER(dr.vendor_name) = ? AND LOWER(dr.document_number) = ?",
			model.RevisionSuperseded, strings.ToLower(strings.TrimSpace(vendor)), strings.ToLower(strings.TrimSpace(number))).
		Order("processing_documents.created_at ASC").
		First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListExportRows returns approved revisions with their line items. Confirmed
// duplicates are excluded.
func (r *documentRepository) ListExportRows(ctx context.Context, filter ExportFilter) ([]ExportRow, error) {
	db := GetDB(ctx, r.db)

	var docs []model.ProcessingDocument
	query := db.Model(&model.ProcessingDocument{}).
		Scopes(filter.Scopes...).
		Where("processing_documents.duplicate_status <> ?", model.DuplicateConfirmed).
		Where("EXISTS (SELECT 1 FROM document_revisions dr WHERE dr.document_id = processing_documents.id AND dr.status = ?)", model.RevisionApproved)
	if filter.CompanyID != nil {
		query = query.Where("processing_documents.company_id = ?", *filter.CompanyID)
	}
	if filter.TagID != nil {
		query = query.Where("EXISTS (SELECT 1 FROM document_tags dt WHERE dt.document_id = processing_documents.id AND dt.tag_id = ?)", *filter.TagID)
	}
	if err := query.Preload("Company").Order("processing_documents.created_at ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []ExportRow{}, nil
	}

	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	var revisions []model.DocumentRevision
	revQuery := db.Where("document_id IN ? AND status = ?", ids, model.RevisionApproved)
	if filter.From != nil {
		revQuery = revQuery.Where("document_date >= ?", *filter.From)
	}
	if filter.To != nil {
		revQuery = revQuery.Where("document_date <= ?", *filter.To)
	}
	if err := revQuery.Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		Find(&revisions).Error; err != nil {
		return nil, err
	}

	byDoc := make(map[uuid.UUID]model.DocumentRevision, len(revisions))
	for _, rev := range revisions {
		byDoc[rev.DocumentID] = rev
	}
	rows := make([]ExportRow, 0, len(revisions))
	for _, d := range docs {
		rev, ok := byDoc[d.ID]
		if !ok {
			continue
		}
		row := ExportRow{Document: d, Revision: rev}
		if d.Company != nil {
			row.Company = *d.Company
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ListByPipelineStatus returns the oldest live documents in any of the statuses
// across all tenants. The extraction worker uses it to recover queued work.
func (r *documentRepository) ListByPipelineStatus(ctx context.Context, statuses []string, limit int) ([]model.ProcessingDocument, error) {
	var docs []model.ProcessingDocument
	query := GetDB(ctx, r.db).Where("pipeline_status IN ?", statuses).Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
