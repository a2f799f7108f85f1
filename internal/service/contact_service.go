package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- Contact DTOs ---

type CreateContactRequest struct {
	Name          string `json:"name" binding:"required,max=255"`
	Type          string `json:"type" binding:"required"`
	UEN           string `json:"uen" binding:"omitempty,uen"`
	ContactPerson string `json:"contact_person"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	BankAccount   string `json:"bank_account"`
}

type UpdateContactRequest struct {
	Name          *string `json:"name"`
	Type          *string `json:"type"`
	UEN           *string `json:"uen" binding:"omitempty,uen"`
	ContactPerson *string `json:"contact_person"`
	Email         *string `json:"email"`
	Phone         *string `json:"phone"`
	Address       *string `json:"address"`
	BankAccount   *string `json:"bank_account"`
	IsActive      *bool   `json:"is_active"`
}

type ContactResponse struct {
	ID            uuid.UUID `json:"id"`
	CompanyID     uuid.UUID `json:"company_id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	UEN           string    `json:"uen"`
	ContactPerson string    `json:"contact_person"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	BankAccount   string    `json:"bank_account"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// --- Interface ---

type ContactService interface {
	CreateContact(ctx context.Context, companyID string, req CreateContactRequest) (ContactResponse, error)
	UpdateContact(ctx context.Context, companyID, id string, req UpdateContactRequest) (ContactResponse, error)
	DeleteContact(ctx context.Context, companyID, id string) error
	GetContact(ctx context.Context, companyID, id string) (ContactResponse, error)
	GetContacts(ctx context.Context, companyID, contactType, search string, page, limit int) ([]ContactResponse, int64, error)
}

// --- Implementation ---

type contactService struct {
	contactRepo repository.ContactRepository
	companyRepo repository.CompanyRepository
	audit       AuditService
	txManager   repository.TransactionManager
}

func NewContactService(
	contactRepo repository.ContactRepository,
	companyRepo repository.CompanyRepository,
	audit AuditService,
	txManager repository.TransactionManager,
) ContactService {
	return &contactService{contactRepo: contactRepo, companyRepo: companyRepo, audit: audit, txManager: txManager}
}

// --- Validation helpers ---

var validContactTypes = map[string]bool{
	model.ContactTypeVendor:   true,
	model.ContactTypeCustomer: true,
	model.ContactTypeBoth:     true,
}

func validateContactType(t string) error {
	if !validContactTypes[t] {
		return apperr.Validation("type must be one of: VENDOR, CUSTOMER, BOTH").
			WithDetails(map[string]string{"type": "oneof"})
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.Validation("invalid email format").WithDetails(map[string]string{"email": "email"})
	}
	return nil
}

// --- CRUD ---

func (s *contactService) CreateContact(ctx context.Context, companyID string, req CreateContactRequest) (ContactResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return ContactResponse{}, apperr.Validation("name is required")
	}
	if err := validateContactType(req.Type); err != nil {
		return ContactResponse{}, err
	}
	if err := validateEmail(req.Email); err != nil {
		return ContactResponse{}, err
	}

	var contact *model.Contact
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		company, err := s.company(txCtx, companyID, rbac.ActionManage)
		if err != nil {
			return err
		}
		contact = &model.Contact{
			TenantID:      company.TenantID,
			CompanyID:     company.ID,
			Name:          strings.TrimSpace(req.Name),
			Type:          req.Type,
			UEN:           normalizeUEN(req.UEN),
			ContactPerson: req.ContactPerson,
			Email:         req.Email,
			Phone:         req.Phone,
			Address:       req.Address,
			BankAccount:   req.BankAccount,
			IsActive:      true,
		}
		if err := s.contactRepo.Create(txCtx, contact); err != nil {
			return fmt.Errorf("failed to create contact: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &company.ID,
			Action:     model.ActionCreate,
			EntityType: model.EntityContact,
			EntityID:   contact.ID.String(),
			After:      toContactResponse(*contact),
		})
	})
	if err != nil {
		return ContactResponse{}, err
	}
	return toContactResponse(*contact), nil
}

func (s *contactService) UpdateContact(ctx context.Context, companyID, id string, req UpdateContactRequest) (ContactResponse, error) {
	var contact *model.Contact
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if contact, err = s.load(txCtx, companyID, id, rbac.ActionManage); err != nil {
			return err
		}
		before := toContactResponse(*contact)

		if req.Name != nil {
			if strings.TrimSpace(*req.Name) == "" {
				return apperr.Validation("name cannot be empty")
			}
			contact.Name = strings.TrimSpace(*req.Name)
		}
		if req.Type != nil {
			if err := validateContactType(*req.Type); err != nil {
				return err
			}
			contact.Type = *req.Type
		}
		if req.Email != nil {
			if err := validateEmail(*req.Email); err != nil {
				return err
			}
			contact.Email = *req.Email
		}
		if req.UEN != nil {
			contact.UEN = normalizeUEN(*req.UEN)
		}
		if req.ContactPerson != nil {
			contact.ContactPerson = *req.ContactPerson
		}
		if req.Phone != nil {
			contact.Phone = *req.Phone
		}
		if req.Address != nil {
			contact.Address = *req.Address
		}
		if req.BankAccount != nil {
			contact.BankAccount = *req.BankAccount
		}
		if req.IsActive != nil {
			contact.IsActive = *req.IsActive
		}

		if err := s.contactRepo.Update(txCtx, contact); err != nil {
			return fmt.Errorf("failed to update contact: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &contact.CompanyID,
			Action:     model.ActionUpdate,
			EntityType: model.EntityContact,
			EntityID:   contact.ID.String(),
			Before:     before,
			After:      toContactResponse(*contact),
		})
	})
	if err != nil {
		return ContactResponse{}, err
	}
	return toContactResponse(*contact), nil
}

func (s *contactService) DeleteContact(ctx context.Context, companyID, id string) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		contact, err := s.load(txCtx, companyID, id, rbac.ActionManage)
		if err != nil {
			return err
		}
		if err := s.contactRepo.Delete(txCtx, contact.ID); err != nil {
			return fmt.Errorf("failed to delete contact: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &contact.CompanyID,
			Action:     model.ActionDelete,
			EntityType: model.EntityContact,
			EntityID:   contact.ID.String(),
			Before:     toContactResponse(*contact),
		})
	})
}

func (s *contactService) GetContact(ctx context.Context, companyID, id string) (ContactResponse, error) {
	contact, err := s.load(ctx, companyID, id, rbac.ActionRead)
	if err != nil {
		return ContactResponse{}, err
	}
	return toContactResponse(*contact), nil
}

func (s *contactService) GetContacts(ctx context.Context, companyID, contactType, search string, page, limit int) ([]ContactResponse, int64, error) {
	company, err := s.company(ctx, companyID, rbac.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	if contactType != "" {
		if err := validateContactType(contactType); err != nil {
			return nil, 0, err
		}
	}
	page, limit = normalizePage(page, limit)

	contacts, total, err := s.contactRepo.List(ctx, repository.ContactFilter{
		CompanyID: company.ID,
		Type:      contactType,
		Search:    search,
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contacts: %w", err)
	}

	res := make([]ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		res = append(res, toContactResponse(c))
	}
	return res, total, nil
}

// --- Helpers ---

// company resolves the parent company and checks contacts.<action> on it
func (s *contactService) company(ctx context.Context, companyID, action string) (*model.Company, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID(companyID, "company id")
	if err != nil {
		return nil, err
	}
	company, err := s.companyRepo.FindByID(ctx, id, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, loadErr(err, "Company")
	}
	if !p.CanInCompany(rbac.ResourceContacts, rbac.ActionRead, company.ID) {
		return nil, apperr.NotFound("Company")
	}
	if err := p.RequireCompany(rbac.ResourceContacts, action, company.ID); err != nil {
		return nil, err
	}
	return company, nil
}

func (s *contactService) load(ctx context.Context, companyID, id, action string) (*model.Contact, error) {
	company, err := s.company(ctx, companyID, action)
	if err != nil {
		return nil, err
	}
	contactID, err := parseID(id, "contact id")
	if err != nil {
		return nil, err
	}
	contact, err := s.contactRepo.FindByID(ctx, contactID, func(db *gorm.DB) *gorm.DB {
		return db.Where("company_id = ?", company.ID)
	})
	if err != nil {
		return nil, loadErr(err, "Contact")
	}
	return contact, nil
}

func toContactResponse(c model.Contact) ContactResponse {
	return ContactResponse{
		ID:            c.ID,
		CompanyID:     c.CompanyID,
		Name:          c.Name,
		Type:          c.Type,
		UEN:           c.UEN,
		ContactPerson: c.ContactPerson,
		Email:         c.Email,
		Phone:         c.Phone,
		Address:       c.Address,
		BankAccount:   c.BankAccount,
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}
