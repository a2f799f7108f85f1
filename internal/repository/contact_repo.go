package repository

import (
	"context"
	"strings"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ContactFilter struct {
	Scopes    []Scope
	CompanyID uuid.UUID
	Type      string
	Search    string
	Page      int
	Limit     int
}

type ContactRepository interface {
	Create(ctx context.Context, contact *model.Contact) error
	Update(ctx context.Context, contact *model.Contact) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.Contact, error)
	FindByName(ctx context.Context, companyID uuid.UUID, name string) (*model.Contact, error)
	List(ctx context.Context, filter ContactFilter) ([]model.Contact, int64, error)
}

type contactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) Create(ctx context.Context, contact *model.Contact) error {
	return GetDB(ctx, r.db).Create(contact).Error
}

func (r *contactRepository) Update(ctx context.Context, contact *model.Contact) error {
	return GetDB(ctx, r.db).Save(contact).Error
}

func (r *contactRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Contact{}).Error
}

func (r *contactRepository) FindByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.Contact, error) {
	var contact model.Contact
	if err := GetDB(ctx, r.db).Scopes(scopes...).First(&contact, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindByName matches a vendor name case-insensitively within one company
func (r *contactRepository) FindByName(ctx context.Context, companyID uuid.UUID, name string) (*model.Contact, error) {
	var contact model.Contact
	if err := GetDB(ctx, r.db).
		Where("company_id = ? AND LOWER(name) = ?", companyID, strings.ToLower(strings.TrimSpace(name))).
		First(&contact).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

func (r *contactRepository) List(ctx context.Context, filter ContactFilter) ([]model.Contact, int64, error) {
	var contacts []model.Contact
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Contact{}).Scopes(filter.Scopes...).Where("company_id = ?", filter.CompanyID)
	if filter.Type != "" {
		query = query.Where("type = ? OR type = ?", filter.Type, model.ContactTypeBoth)
	}
	if filter.Search != "" {
		p := likePattern(strings.ToLower(filter.Search))
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(uen) LIKE ?", p, p, p)
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Scopes(paginate(filter.Page, filter.Limit)).Order("name ASC").Find(&contacts).Error; err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}
