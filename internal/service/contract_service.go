package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/reconcile"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"
	"backoffice/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateContractRequest struct {
	CompanyID    string          `json:"company_id" binding:"required,uuid"`
	ContactID    *string         `json:"contact_id"`
	Name         string          `json:"name" binding:"required,max=255"`
	Description  string          `json:"description"`
	BillingCycle string          `json:"billing_cycle" binding:"required,oneof=MONTHLY QUARTERLY ANNUAL ONE_OFF"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency" binding:"omitempty,currency"`
	StartDate    string          `json:"start_date" binding:"required"`
	EndDate      *string         `json:"end_date"`
}

type UpdateContractRequest struct {
	ContactID    *string          `json:"contact_id"`
	Name         *string          `json:"name" binding:"omitempty,max=255"`
	Description  *string          `json:"description"`
	BillingCycle *string          `json:"billing_cycle" binding:"omitempty,oneof=MONTHLY QUARTERLY ANNUAL ONE_OFF"`
	Amount       *decimal.Decimal `json:"amount"`
	Currency     *string          `json:"currency" binding:"omitempty,currency"`
	StartDate    *string          `json:"start_date"`
	EndDate      *string          `json:"end_date"`
}

type ChangeContractStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PENDING ACTIVE COMPLETED CANCELLED"`
}

type StopContractRequest struct {
	EndDate string `json:"end_date" binding:"required"`
	Reason  string `json:"reason" binding:"required,max=1000"`
}

type ContractListRequest struct {
	CompanyID string
	Status    string
	Search    string
	Page      int
	Limit     int
}

type DeadlineRequest struct {
	Title   string `json:"title" binding:"required,max=255"`
	DueDate string `json:"due_date" binding:"required"`
	Notes   string `json:"notes"`
}

type UpdateDeadlineRequest struct {
	Title   *string `json:"title" binding:"omitempty,max=255"`
	DueDate *string `json:"due_date"`
	Status  *string `json:"status" binding:"omitempty,oneof=PENDING COMPLETED WAIVED"`
	Notes   *string `json:"notes"`
}

type DeadlineResponse struct {
	ID                string  `json:"id"`
	ContractServiceID string  `json:"contract_service_id"`
	Title             string  `json:"title"`
	DueDate           string  `json:"due_date"`
	Status            string  `json:"status"`
	CompletedAt       *string `json:"completed_at"`
	Notes             string  `json:"notes"`
}

type ContractResponse struct {
	ID           string             `json:"id"`
	CompanyID    string             `json:"company_id"`
	ContactID    *string            `json:"contact_id"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Status       string             `json:"status"`
	BillingCycle string             `json:"billing_cycle"`
	Amount       string             `json:"amount"`
	Currency     string             `json:"currency"`
	StartDate    string             `json:"start_date"`
	EndDate      *string            `json:"end_date"`
	StopReason   string             `json:"stop_reason,omitempty"`
	Deadlines    []DeadlineResponse `json:"deadlines,omitempty"`
	CreatedAt    string             `json:"created_at"`
	UpdatedAt    string             `json:"updated_at"`
}

// --- Interface ---

type ContractService interface {
	CreateContract(ctx context.Context, req CreateContractRequest) (*ContractResponse, error)
	GetContract(ctx context.Context, id string) (*ContractResponse, error)
	ListContracts(ctx context.Context, req ContractListRequest) ([]ContractResponse, int64, error)
	UpdateContract(ctx context.Context, id string, req UpdateContractRequest) (*ContractResponse, error)
	DeleteContract(ctx context.Context, id string) error
	ChangeStatus(ctx context.Context, id string, req ChangeContractStatusRequest) (*ContractResponse, error)
	StopContract(ctx context.Context, id string, req StopContractRequest) (*ContractResponse, error)

	ListDeadlines(ctx context.Context, contractID string) ([]DeadlineResponse, error)
	CreateDeadline(ctx context.Context, contractID string, req DeadlineRequest) (*DeadlineResponse, error)
	UpdateDeadline(ctx context.Context, contractID, deadlineID string, req UpdateDeadlineRequest) (*DeadlineResponse, error)
	DeleteDeadline(ctx context.Context, contractID, deadlineID string) error
}

type contractService struct {
	repo      repository.ContractRepository
	companies repository.CompanyRepository
	contacts  repository.ContactRepository
	audit     AuditService
	tx        repository.TransactionManager
}

func NewContractService(
	repo repository.ContractRepository,
	companies repository.CompanyRepository,
	contacts repository.ContactRepository,
	audit AuditService,
	tx repository.TransactionManager,
) ContractService {
	return &contractService{repo: repo, companies: companies, contacts: contacts, audit: audit, tx: tx}
}

// --- Implementation ---

func (s *contractService) CreateContract(ctx context.Context, req CreateContractRequest) (*ContractResponse, error) {
	p, tenantID, err := tenancy.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	companyID, err := parseID(req.CompanyID, "company_id")
	if err != nil {
		return nil, err
	}
	company, err := s.companies.FindByID(ctx, companyID, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, loadErr(err, "Company")
	}
	if err := p.RequireCompany(rbac.ResourceContractServices, rbac.ActionManage, company.ID); err != nil {
		return nil, err
	}

	start, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		return nil, err
	}
	end, err := parseOptionalDate(req.EndDate, "end_date")
	if err != nil {
		return nil, err
	}
	if err := checkContractDates(start, end); err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, apperr.Validation("amount must not be negative")
	}
	currency := company.HomeCurrency
	if req.Currency != "" {
		currency = reconcile.NormalizeCurrency(req.Currency)
	}

	svc := &model.ContractService{
		TenantID:     tenantID,
		CompanyID:    company.ID,
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		Status:       model.ServicePending,
		BillingCycle: req.BillingCycle,
		Amount:       reconcile.Round2(req.Amount),
		Currency:     currency,
		StartDate:    start,
		EndDate:      end,
	}
	if svc.ContactID, err = s.resolveContact(ctx, company.ID, req.ContactID); err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, svc); err != nil {
			return fmt.Errorf("failed to create contract service: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &svc.CompanyID,
			Action:     model.ActionCreate,
			EntityType: model.EntityContractService,
			EntityID:   svc.ID.String(),
			After:      toContractResponse(svc),
		})
	})
	if err != nil {
		return nil, err
	}
	return toContractResponse(svc), nil
}

func (s *contractService) GetContract(ctx context.Context, id string) (*ContractResponse, error) {
	svc, err := s.load(ctx, id, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	deadlines, err := s.repo.ListDeadlines(ctx, svc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deadlines: %w", err)
	}
	svc.Deadlines = deadlines
	return toContractResponse(svc), nil
}

func (s *contractService) ListContracts(ctx context.Context, req ContractListRequest) ([]ContractResponse, int64, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, 0, err
	}
	page, limit := normalizePage(req.Page, req.Limit)
	filter := repository.ContractFilter{
		Scopes: []repository.Scope{
			tenancy.Scope(p, "tenant_id"),
			p.Access(rbac.ResourceContractServices, rbac.ActionRead).Scope("company_id"),
		},
		Status: strings.ToUpper(strings.TrimSpace(req.Status)),
		Search: strings.TrimSpace(req.Search),
		Page:   page,
		Limit:  limit,
	}
	if filter.Status != "" && !workflow.ContractService.Known(filter.Status) {
		return nil, 0, apperr.Validation("unknown contract status %q", req.Status)
	}
	if filter.CompanyID, err = parseOptionalID(&req.CompanyID, "company_id"); err != nil {
		return nil, 0, err
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contract services: %w", err)
	}
	res := make([]ContractResponse, 0, len(items))
	for i := range items {
		res = append(res, *toContractResponse(&items[i]))
	}
	return res, total, nil
}

func (s *contractService) UpdateContract(ctx context.Context, id string, req UpdateContractRequest) (*ContractResponse, error) {
	var svc *model.ContractService
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if svc, err = s.load(txCtx, id, rbac.ActionManage); err != nil {
			return err
		}
		if workflow.ContractService.IsFinal(svc.Status) {
			return apperr.Conflict("a %s contract service cannot be edited", strings.ToLower(svc.Status))
		}
		before := toContractResponse(svc)

		if req.Name != nil {
			svc.Name = strings.TrimSpace(*req.Name)
			if svc.Name == "" {
				return apperr.Validation("name must not be empty")
			}
		}
		if req.Description != nil {
			svc.Description = strings.TrimSpace(*req.Description)
		}
		if req.BillingCycle != nil {
			svc.BillingCycle = *req.BillingCycle
		}
		if req.Amount != nil {
			if req.Amount.IsNegative() {
				return apperr.Validation("amount must not be negative")
			}
			svc.Amount = reconcile.Round2(*req.Amount)
		}
		if req.Currency != nil {
			svc.Currency = reconcile.NormalizeCurrency(*req.Currency)
		}
		if req.StartDate != nil {
			if svc.StartDate, err = parseDate(*req.StartDate, "start_date"); err != nil {
				return err
			}
		}
		if req.EndDate != nil {
			if svc.EndDate, err = parseOptionalDate(req.EndDate, "end_date"); err != nil {
				return err
			}
		}
		if err := checkContractDates(svc.StartDate, svc.EndDate); err != nil {
			return err
		}
		if req.ContactID != nil {
			if svc.ContactID, err = s.resolveContact(txCtx, svc.CompanyID, req.ContactID); err != nil {
				return err
			}
		}

		if err := s.repo.Update(txCtx, svc); err != nil {
			return fmt.Errorf("failed to update contract service: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &svc.CompanyID,
			Action:     model.ActionUpdate,
			EntityType: model.EntityContractService,
			EntityID:   svc.ID.String(),
			Before:     before,
			After:      toContractResponse(svc),
		})
	})
	if err != nil {
		return nil, err
	}
	return toContractResponse(svc), nil
}

func (s *contractService) DeleteContract(ctx context.Context, id string) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		svc, err := s.load(txCtx, id, rbac.ActionManage)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(txCtx, svc.ID); err != nil {
			return fmt.Errorf("failed to delete contract service: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &svc.CompanyID,
			Action:     model.ActionDelete,
			EntityType: model.EntityContractService,
			EntityID:   svc.ID.String(),
			Before:     toContractResponse(svc),
		})
	})
}

func (s *contractService) ChangeStatus(ctx context.Context, id string, req ChangeContractStatusRequest) (*ContractResponse, error) {
	var svc *model.ContractService
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if svc, err = s.load(txCtx, id, rbac.ActionManage); err != nil {
			return err
		}
		from := svc.Status
		if err := workflow.ContractService.Check(from, req.Status); err != nil {
			return err
		}
		svc.Status = req.Status
		if err := s.repo.Update(txCtx, svc); err != nil {
			return fmt.Errorf("failed to update contract status: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &svc.CompanyID,
			Action:     model.ActionStatusChanged,
			EntityType: model.EntityContractService,
			EntityID:   svc.ID.String(),
			Before:     map[string]string{"status": from},
			After:      map[string]string{"status": req.Status},
		})
	})
	if err != nil {
		return nil, err
	}
	return toContractResponse(svc), nil
}

// StopContract cancels the service as of the end date and drops pending
// deadlines falling after it
func (s *contractService) StopContract(ctx context.Context, id string, req StopContractRequest) (*ContractResponse, error) {
	end, err := parseDate(req.EndDate, "end_date")
	if err != nil {
		return nil, err
	}

	var svc *model.ContractService
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if svc, err = s.load(txCtx, id, rbac.ActionManage); err != nil {
			return err
		}
		from := svc.Status
		if err := workflow.ContractService.Check(from, model.ServiceCancelled); err != nil {
			return err
		}
		if end.Before(svc.StartDate) {
			return apperr.Validation("end_date must not be before the start date")
		}
		svc.Status = model.ServiceCancelled
		svc.EndDate = &end
		svc.StopReason = strings.TrimSpace(req.Reason)
		if err := s.repo.Update(txCtx, svc); err != nil {
			return fmt.Errorf("failed to stop contract service: %w", err)
		}
		removed, err := s.repo.DeletePendingDeadlinesAfter(txCtx, svc.ID, end)
		if err != nil {
			return fmt.Errorf("failed to remove deadlines: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &svc.CompanyID,
			Action:     model.ActionServiceStopped,
			EntityType: model.EntityContractService,
			EntityID:   svc.ID.String(),
			Before:     map[string]string{"status": from},
			After: map[string]interface{}{
				"status":            svc.Status,
				"end_date":          end.Format(dateLayout),
				"reason":            svc.StopReason,
				"deadlines_removed": removed,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return toContractResponse(svc), nil
}

func (s *contractService) ListDeadlines(ctx context.Context, contractID string) ([]DeadlineResponse, error) {
	svc, err := s.load(ctx, contractID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	deadlines, err := s.repo.ListDeadlines(ctx, svc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deadlines: %w", err)
	}
	res := make([]DeadlineResponse, 0, len(deadlines))
	for i := range deadlines {
		res = append(res, toDeadlineResponse(&deadlines[i]))
	}
	return res, nil
}

func (s *contractService) CreateDeadline(ctx context.Context, contractID string, req DeadlineRequest) (*DeadlineResponse, error) {
	due, err := parseDate(req.DueDate, "due_date")
	if err != nil {
		return nil, err
	}

	var d *model.ServiceDeadline
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		svc, err := s.load(txCtx, contractID, rbac.ActionManage)
		if err != nil {
			return err
		}
		if workflow.ContractService.IsFinal(svc.Status) {
			return apperr.Conflict("cannot add deadlines to a %s contract service", strings.ToLower(svc.Status))
		}
		d = &model.ServiceDeadline{
			TenantID:          svc.TenantID,
			ContractServiceID: svc.ID,
			Title:             strings.TrimSpace(req.Title),
			DueDate:           due,
			Status:            model.DeadlinePending,
			Notes:             strings.TrimSpace(req.Notes),
		}
		if err := s.repo.CreateDeadline(txCtx, d); err != nil {
			return fmt.Errorf("failed to create deadline: %w", err)
		}
		res := toDeadlineResponse(d)
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &svc.CompanyID,
			Action:     model.ActionCreate,
			EntityType: model.EntityServiceDeadline,
			EntityID:   d.ID.String(),
			After:      res,
		})
	})
	if err != nil {
		return nil, err
	}
	res := toDeadlineResponse(d)
	return &res, nil
}

func (s *contractService) UpdateDeadline(ctx context.Context, contractID, deadlineID string, req UpdateDeadlineRequest) (*DeadlineResponse, error) {
	var d *model.ServiceDeadline
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		svc, dl, err := s.loadDeadline(txCtx, contractID, deadlineID)
		if err != nil {
			return err
		}
		d = dl
		before := toDeadlineResponse(d)

		if req.Title != nil {
			d.Title = strings.TrimSpace(*req.Title)
		}
		if req.Notes != nil {
			d.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.DueDate != nil {
			if d.DueDate, err = parseDate(*req.DueDate, "due_date"); err != nil {
				return err
			}
		}
		if req.Status != nil && *req.Status != d.Status {
			d.Status = *req.Status
			if d.Status == model.DeadlineCompleted {
				now := time.Now()
				d.CompletedAt = &now
			} else {
				d.CompletedAt = nil
			}
		}
		if err := s.repo.UpdateDeadline(txCtx, d); err != nil {
			return fmt.Errorf("failed to update deadline: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &svc.CompanyID,
			Action:     model.ActionUpdate,
			EntityType: model.EntityServiceDeadline,
			EntityID:   d.ID.String(),
			Before:     before,
			After:      toDeadlineResponse(d),
		})
	})
	if err != nil {
		return nil, err
	}
	res := toDeadlineResponse(d)
	return &res, nil
}

func (s *contractService) DeleteDeadline(ctx context.Context, contractID, deadlineID string) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		svc, d, err := s.loadDeadline(txCtx, contractID, deadlineID)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteDeadline(txCtx, d.ID); err != nil {
			return fmt.Errorf("failed to delete deadline: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  &svc.CompanyID,
			Action:     model.ActionDelete,
			EntityType: model.EntityServiceDeadline,
			EntityID:   d.ID.String(),
			Before:     toDeadlineResponse(d),
		})
	})
}

// --- Helpers ---

// load fetches a contract service of the caller's tenant. Services of companies
// the caller cannot read are reported missing.
func (s *contractService) load(ctx context.Context, id, action string) (*model.ContractService, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	svcID, err := parseID(id, "contract service id")
	if err != nil {
		return nil, err
	}
	svc, err := s.repo.FindByID(ctx, svcID, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, loadErr(err, "Contract service")
	}
	if !p.CanInCompany(rbac.ResourceContractServices, rbac.ActionRead, svc.CompanyID) {
		return nil, apperr.NotFound("Contract service")
	}
	if err := p.RequireCompany(rbac.ResourceContractServices, action, svc.CompanyID); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *contractService) loadDeadline(ctx context.Context, contractID, deadlineID string) (*model.ContractService, *model.ServiceDeadline, error) {
	svc, err := s.load(ctx, contractID, rbac.ActionManage)
	if err != nil {
		return nil, nil, err
	}
	id, err := parseID(deadlineID, "deadline id")
	if err != nil {
		return nil, nil, err
	}
	d, err := s.repo.FindDeadline(ctx, svc.ID, id)
	if err != nil {
		return nil, nil, loadErr(err, "Deadline")
	}
	return svc, d, nil
}

// resolveContact checks an optional contact id against the company's contacts
func (s *contractService) resolveContact(ctx context.Context, companyID uuid.UUID, raw *string) (*uuid.UUID, error) {
	contactID, err := parseOptionalID(raw, "contact_id")
	if err != nil || contactID == nil {
		return nil, err
	}
	if _, err := s.contacts.FindByID(ctx, *contactID, func(db *gorm.DB) *gorm.DB {
		return db.Where("company_id = ?", companyID)
	}); err != nil {
		return nil, loadErr(err, "Contact")
	}
	return contactID, nil
}

func checkContractDates(start time.Time, end *time.Time) error {
	if end != nil && end.Before(start) {
		return apperr.Validation("end_date must not be before start_date")
	}
	return nil
}

func toContractResponse(c *model.ContractService) *ContractResponse {
	res := &ContractResponse{
		ID:           c.ID.String(),
		CompanyID:    c.CompanyID.String(),
		ContactID:    idString(c.ContactID),
		Name:         c.Name,
		Description:  c.Description,
		Status:       c.Status,
		BillingCycle: c.BillingCycle,
		Amount:       money(c.Amount),
		Currency:     c.Currency,
		StartDate:    c.StartDate.Format(dateLayout),
		EndDate:      formatDate(c.EndDate),
		StopReason:   c.StopReason,
		CreatedAt:    formatTime(c.CreatedAt),
		UpdatedAt:    formatTime(c.UpdatedAt),
	}
	if len(c.Deadlines) > 0 {
		res.Deadlines = make([]DeadlineResponse, 0, len(c.Deadlines))
		for i := range c.Deadlines {
			res.Deadlines = append(res.Deadlines, toDeadlineResponse(&c.Deadlines[i]))
		}
	}
	return res
}

func toDeadlineResponse(d *model.ServiceDeadline) DeadlineResponse {
	return DeadlineResponse{
		ID:                d.ID.String(),
		ContractServiceID: d.ContractServiceID.String(),
		Title:             d.Title,
		DueDate:           d.DueDate.Format(dateLayout),
		Status:            d.Status,
		CompletedAt:       formatTimePtr(d.CompletedAt),
		Notes:             d.Notes,
	}
}
