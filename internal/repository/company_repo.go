package repository

import (
	"context"
	"strings"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CompanyFilter struct {
	Scopes []Scope
	Search string
	Active *bool
	Page   int
	Limit  int
}

type CompanyRepository interface {
	Create(ctx context.Context, company *model.Company) error
	Update(ctx context.Context, company *model.Company) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.Company, error)
	List(ctx context.Context, filter CompanyFilter) ([]model.Company, int64, error)
	ExistsUEN(ctx context.Context, tenantID uuid.UUID, uen string, excludeID *uuid.UUID) (bool, error)
}

type companyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) CompanyRepository {
	return &companyRepository{db: db}
}

func (r *companyRepository) Create(ctx context.Context, company *model.Company) error {
	return GetDB(ctx, r.db).Create(company).Error
}

func (r *companyRepository) Update(ctx context.Context, company *model.Company) error {
	return GetDB(ctx, r.db).Save(company).Error
}

func (r *companyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Company{}).Error
}

func (r *companyRepository) FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.Company, error) {
	var company model.Company
	if err := GetDB(ctx, r.db).Scopes(scopes...).First(&company, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *companyRepository) List(ctx context.Context, filter CompanyFilter) ([]model.Company, int64, error) {
	var companies []model.Company
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Company{}).Scopes(filter.Scopes...)
	if filter.Search != "" {
		p := likePattern(strings.ToLower(filter.Search))
		query = query.Where("LOWER(name) LIKE ? OR LOWER(uen) LIKE ?", p, p)
	}
	if filter.Active != nil {
		query = query.Where("is_active = ?", *filter.Active)
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Scopes(paginate(filter.Page, filter.Limit)).Order("name ASC").Find(&companies).Error; err != nil {
		return nil, 0, err
	}
	return companies, total, nil
}

// ExistsUEN checks uniqueness within one tenant only. Soft-deleted companies
// release their UEN, matching the partial unique index.
func (r *companyRepository) ExistsUEN(ctx context.Context, tenantID uuid.UUID, uen string, excludeID *uuid.UUID) (bool, error) {
	var count int64
	query := GetDB(ctx, r.db).Model(&model.Company{}).Where("tenant_id = ? AND uen = ?", tenantID, uen)
	if excludeID != nil {
		query = query.Where("id != ?", *excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
