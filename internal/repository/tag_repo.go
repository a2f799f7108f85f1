package repository

import (
	"context"
	"strings"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TagRepository interface {
	Create(ctx context.Context, tag *model.Tag) error
	Update(ctx context.Context, tag *model.Tag) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.Tag, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID, scopes ...Scope) ([]model.Tag, error)
	List(ctx context.Context, companyID *uuid.UUID, scopes ...Scope) ([]model.Tag, error)
	NameTaken(ctx context.Context, tenantID uuid.UUID, companyID *uuid.UUID, name string, excludeID *uuid.UUID) (bool, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]model.Tag, error)
	ReplaceDocumentTags(ctx context.Context, documentID uuid.UUID, tagIDs []uuid.UUID, by *uuid.UUID) error
	AddDocumentTag(ctx context.Context, documentID, tagID uuid.UUID, by *uuid.UUID) error
	RemoveDocumentTag(ctx context.Context, documentID, tagID uuid.UUID) (int64, error)
}

type tagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) Create(ctx context.Context, tag *model.Tag) error {
	return GetDB(ctx, r.db).Create(tag).Error
}

func (r *tagRepository) Update(ctx context.Context, tag *model.Tag) error {
	return GetDB(ctx, r.db).Save(tag).Error
}

// Delete removes the tag and every document link to it
func (r *tagRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("tag_id = ?", id).Delete(&model.DocumentTag{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Tag{}).Error
}

func (r *tagRepository) FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.Tag, error) {
	var tag model.Tag
	if err := GetDB(ctx, r.db).Scopes(scopes...).First(&tag, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *tagRepository) FindByIDs(ctx context.Context, ids []uuid.UUID, scopes ...Scope) ([]model.Tag, error) {
	var tags []model.Tag
	if len(ids) == 0 {
		return tags, nil
	}
	if err := GetDB(ctx, r.db).Scopes(scopes...).Where("id IN ?", ids).Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// List returns the tenant-shared tags, plus one company's tags when companyID is set
func (r *tagRepository) List(ctx context.Context, companyID *uuid.UUID, scopes ...Scope) ([]model.Tag, error) {
	var tags []model.Tag
	query := GetDB(ctx, r.db).Scopes(scopes...)
	if companyID != nil {
		query = query.Where("company_id IS NULL OR company_id = ?", *companyID)
	} else {
		query = query.Where("company_id IS NULL")
	}
	if err := query.Order("name ASC").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// NameTaken checks case-insensitive uniqueness within the tag's scope
func (r *tagRepository) NameTaken(ctx context.Context, tenantID uuid.UUID, companyID *uuid.UUID, name string, excludeID *uuid.UUID) (bool, error) {
	var count int64
	query := GetDB(ctx, r.db).Model(&model.Tag{}).
		Where("tenant_id = ? AND LOWER(name) = ?", tenantID, strings.ToLower(strings.TrimSpace(name)))
	if companyID == nil {
		query = query.Where("company_id IS NULL")
	} else {
		query = query.Where("company_id = ?", *companyID)
	}
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *tagRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]model.Tag, error) {
	var tags []model.Tag
	if err := GetDB(ctx, r.db).
		Joins("JOIN document_tags dt ON dt.tag_id = tags.id").
		Where("dt.document_id = ?", documentID).
		Order("tags.name ASC").
		Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

func (r *tagRepository) ReplaceDocumentTags(ctx context.Context, documentID uuid.UUID, tagIDs []uuid.UUID, by *uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("document_id = ?", documentID).Delete(&model.DocumentTag{}).Error; err != nil {
		return err
	}
	if len(tagIDs) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]model.DocumentTag, 0, len(tagIDs))
	for _, id := range tagIDs {
		rows = append(rows, model.DocumentTag{DocumentID: documentID, TagID: id, TaggedBy: by, CreatedAt: now})
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (r *tagRepository) AddDocumentTag(ctx context.Context, documentID, tagID uuid.UUID, by *uuid.UUID) error {
	row := model.DocumentTag{DocumentID: documentID, TagID: tagID, TaggedBy: by, CreatedAt: time.Now()}
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (r *tagRepository) RemoveDocumentTag(ctx context.Context, documentID, tagID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).Where("document_id = ? AND tag_id = ?", documentID, tagID).Delete(&model.DocumentTag{})
	return res.RowsAffected, res.Error
}
