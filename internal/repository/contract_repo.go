package repository

import (
	"context"
	"strings"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ContractFilter struct {
	Scopes    []Scope
	CompanyID *uuid.UUID
	Status    string
	Search    string
	Page      int
	Limit     int
}

type ContractRepository interface {
	Create(ctx context.Context, svc *model.ContractService) error
	Update(ctx context.Context, svc *model.ContractService) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.ContractService, error)
	List(ctx context.Context, filter ContractFilter) ([]model.ContractService, int64, error)

	CreateDeadline(ctx context.Context, d *model.ServiceDeadline) error
	UpdateDeadline(ctx context.Context, d *model.ServiceDeadline) error
	DeleteDeadline(ctx context.Context, id uuid.UUID) error
	FindDeadline(ctx context.Context, serviceID, deadlineID uuid.UUID) (*model.ServiceDeadline, error)
	ListDeadlines(ctx context.Context, serviceID uuid.UUID) ([]model.ServiceDeadline, error)
	DeletePendingDeadlinesAfter(ctx context.Context, serviceID uuid.UUID, after time.Time) (int64, error)
}

type contractRepository struct {
	db *gorm.DB
}

func NewContractRepository(db *gorm.DB) ContractRepository {
	return &contractRepository{db: db}
}

func (r *contractRepository) Create(ctx context.Context, svc *model.ContractService) error {
	return GetDB(ctx, r.db).Omit("Deadlines").Create(svc).Error
}

func (r *contractRepository) Update(ctx context.Context, svc *model.ContractService) error {
	return GetDB(ctx, r.db).Omit("Deadlines").Save(svc).Error
}

func (r *contractRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.ContractService{}).Error
}

func (r *contractRepository) FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.ContractService, error) {
	var svc model.ContractService
	if err := GetDB(ctx, r.db).Scopes(scopes...).
		Preload("Deadlines", func(db *gorm.DB) *gorm.DB { return db.Order("due_date ASC") }).
		First(&svc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &svc, nil
}

func (r *contractRepository) List(ctx context.Context, filter ContractFilter) ([]model.ContractService, int64, error) {
	var items []model.ContractService
	var total int64

	query := GetDB(ctx, r.db).Model(&model.ContractService{}).Scopes(filter.Scopes...)
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(name) LIKE ?", likePattern(strings.ToLower(filter.Search)))
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Scopes(paginate(filter.Page, filter.Limit)).Order("start_date DESC, name ASC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *contractRepository) CreateDeadline(ctx context.Context, d *model.ServiceDeadline) error {
	return GetDB(ctx, r.db).Create(d).Error
}

func (r *contractRepository) UpdateDeadline(ctx context.Context, d *model.ServiceDeadline) error {
	return GetDB(ctx, r.db).Save(d).Error
}

func (r *contractRepository) DeleteDeadline(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.ServiceDeadline{}).Error
}

func (r *contractRepository) FindDeadline(ctx context.Context, serviceID, deadlineID uuid.UUID) (*model.ServiceDeadline, error) {
	var d model.ServiceDeadline
	if err := GetDB(ctx, r.db).First(&d, "id = ? AND contract_service_id = ?", deadlineID, serviceID).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *contractRepository) ListDeadlines(ctx context.Context, serviceID uuid.UUID) ([]model.ServiceDeadline, error) {
	var items []model.ServiceDeadline
	if err := GetDB(ctx, r.db).Where("contract_service_id = ?", serviceID).Order("due_date ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// DeletePendingDeadlinesAfter prunes PENDING deadlines due strictly after the given date
func (r *contractRepository) DeletePendingDeadlinesAfter(ctx context.Context, serviceID uuid.UUID, after time.Time) (int64, error) {
	res := GetDB(ctx, r.db).
		Where("contract_service_id = ? AND status = ? AND due_date > ?", serviceID, model.DeadlinePending, after).
		Delete(&model.ServiceDeadline{})
	return res.RowsAffected, res.Error
}
