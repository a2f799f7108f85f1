package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaxCodeRepository interface {
	Create(ctx context.Context, code *model.TaxCode) error
	Update(ctx context.Context, code *model.TaxCode) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.TaxCode, error)
	List(ctx context.Context, scopes ...Scope) ([]model.TaxCode, error)
	FindActiveByCode(ctx context.Context, tenantID uuid.UUID, code string, targetDate time.Time) (*model.TaxCode, error)
	FindOverlapping(ctx context.Context, tenantID uuid.UUID, code string, from time.Time, to *time.Time, excludeID *uuid.UUID) (int64, error)
}

type taxCodeRepository struct {
	db *gorm.DB
}

func NewTaxCodeRepository(db *gorm.DB) TaxCodeRepository {
	return &taxCodeRepository{db: db}
}

func (r *taxCodeRepository) Create(ctx context.Context, code *model.TaxCode) error {
	return GetDB(ctx, r.db).Create(code).Error
}

func (r *taxCodeRepository) Update(ctx context.Context, code *model.TaxCode) error {
	return GetDB(ctx, r.db).Save(code).Error
}

func (r *taxCodeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.TaxCode{}).Error
}

func (r *taxCodeRepository) FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.TaxCode, error) {
	var code model.TaxCode
	if err := GetDB(ctx, r.db).Scopes(scopes...).First(&code, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *taxCodeRepository) List(ctx context.Context, scopes ...Scope) ([]model.TaxCode, error) {
	var codes []model.TaxCode
	if err := GetDB(ctx, r.db).Scopes(scopes...).Order("code ASC, effective_from DESC").Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *taxCodeRepository) FindActiveByCode(ctx context.Context, tenantID uuid.UUID, code string, targetDate time.Time) (*model.TaxCode, error) {
	var tc model.TaxCode
	if err := GetDB(ctx, r.db).
		Where("tenant_id = ? AND code = ? AND effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)", tenantID, code, targetDate, targetDate).
		Order("effective_from DESC").
		First(&tc).Error; err != nil {
		return nil, err
	}
	return &tc, nil
}

func (r *taxCodeRepository) FindOverlapping(ctx context.Context, tenantID uuid.UUID, code string, from time.Time, to *time.Time, excludeID *uuid.UUID) (int64, error) {
	var count int64
	query := GetDB(ctx, r.db).Model(&model.TaxCode{}).Where("tenant_id = ? AND code = ?", tenantID, code)

	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	if to != nil {
		// existing.from <= new.to AND (existing.to IS NULL OR existing.to >= new.from)
		query = query.Where("effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)", *to, from)
	} else {
		query = query.Where("(effective_to IS NULL OR effective_to >= ?)", from)
	}

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
