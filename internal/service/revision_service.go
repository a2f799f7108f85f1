package service

import (
	"context"
	"errors"
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
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// --- DTOs ---

// LineItemInput replaces a revision's lines. Home values are only taken from the
// request when the matching override flag is set.
type LineItemInput struct {
	Description          string           `json:"description"`
	Quantity             decimal.Decimal  `json:"quantity"`
	UnitPrice            decimal.Decimal  `json:"unit_price"`
	Amount               decimal.Decimal  `json:"amount"`
	TaxCode              string           `json:"tax_code" binding:"omitempty,max=20"`
	GSTAmount            *decimal.Decimal `json:"gst_amount"`
	IsHomeAmountOverride bool             `json:"is_home_amount_override"`
	HomeAmount           *decimal.Decimal `json:"home_amount"`
	IsHomeGSTOverride    bool             `json:"is_home_gst_override"`
	HomeGSTAmount        *decimal.Decimal `json:"home_gst_amount"`
}

// RevisionInput is a partial update of a revision header; nil fields are kept
type RevisionInput struct {
	VendorName     *string          `json:"vendor_name" binding:"omitempty,max=255"`
	ContactID      *string          `json:"contact_id" binding:"omitempty,uuid"`
	DocumentNumber *string          `json:"document_number" binding:"omitempty,max=100"`
	DocumentDate   *string          `json:"document_date"`
	DueDate        *string          `json:"due_date"`
	Currency       *string          `json:"currency" binding:"omitempty,currency"`
	ExchangeRate   *decimal.Decimal `json:"exchange_rate"`
	Subtotal       *decimal.Decimal `json:"subtotal"`
	TaxAmount      *decimal.Decimal `json:"tax_amount"`
	TotalAmount    *decimal.Decimal `json:"total_amount"`
	Notes          *string          `json:"notes"`
	LineItems      *[]LineItemInput `json:"line_items" binding:"omitempty,dive"`
}

type CreateRevisionRequest struct {
	LockVersion *int `json:"lock_version" binding:"required,min=0"`
	RevisionInput
}

type UpdateRevisionRequest struct {
	LockVersion *int `json:"lock_version" binding:"required,min=0"`
	RevisionInput
}

type LockRequest struct {
	LockVersion *int `json:"lock_version" binding:"required,min=0"`
}

type LineItemResponse struct {
	ID                   string `json:"id"`
	LineNumber           int    `json:"line_number"`
	Description          string `json:"description"`
	Quantity             string `json:"quantity"`
	UnitPrice            string `json:"unit_price"`
	Amount               string `json:"amount"`
	TaxCode              string `json:"tax_code"`
	GSTAmount            string `json:"gst_amount"`
	HomeAmount           string `json:"home_amount"`
	HomeGSTAmount        string `json:"home_gst_amount"`
	IsHomeAmountOverride bool   `json:"is_home_amount_override"`
	IsHomeGSTOverride    bool   `json:"is_home_gst_override"`
}

type RevisionResponse struct {
	ID               string                  `json:"id"`
	DocumentID       string                  `json:"document_id"`
	RevisionNumber   int                     `json:"revision_number"`
	Status           string                  `json:"status"`
	Source           string                  `json:"source"`
	VendorName       string                  `json:"vendor_name"`
	ContactID        *string                 `json:"contact_id"`
	DocumentNumber   string                  `json:"document_number"`
	DocumentDate     *string                 `json:"document_date"`
	DueDate          *string                 `json:"due_date"`
	Currency         string                  `json:"currency"`
	HomeCurrency     string                  `json:"home_currency"`
	ExchangeRate     string                  `json:"exchange_rate"`
	Subtotal         string                  `json:"subtotal"`
	TaxAmount        string                  `json:"tax_amount"`
	TotalAmount      string                  `json:"total_amount"`
	HomeSubtotal     string                  `json:"home_subtotal"`
	HomeTaxAmount    string                  `json:"home_tax_amount"`
	HomeTotal        string                  `json:"home_total"`
	Notes            string                  `json:"notes"`
	ValidationIssues []model.ValidationIssue `json:"validation_issues"`
	LineItems        []LineItemResponse      `json:"line_items"`
	CreatedBy        *string                 `json:"created_by"`
	ApprovedBy       *string                 `json:"approved_by"`
	ApprovedAt       *string                 `json:"approved_at"`
	SupersededAt     *string                 `json:"superseded_at"`
	CreatedAt        string                  `json:"created_at"`
	UpdatedAt        string                  `json:"updated_at"`
}

// RevisionSummary is one row of a document's revision history
type RevisionSummary struct {
	ID             string  `json:"id"`
	RevisionNumber int     `json:"revision_number"`
	Status         string  `json:"status"`
	Source         string  `json:"source"`
	VendorName     string  `json:"vendor_name"`
	DocumentNumber string  `json:"document_number"`
	Currency       string  `json:"currency"`
	TotalAmount    string  `json:"total_amount"`
	HomeTotal      string  `json:"home_total"`
	IssueCount     int     `json:"issue_count"`
	ApprovedAt     *string `json:"approved_at"`
	CreatedAt      string  `json:"created_at"`
}

// RevisionMutation is returned by every revision write so clients can pick up
// the document's new lock version
type RevisionMutation struct {
	Revision    *RevisionResponse `json:"revision,omitempty"`
	LockVersion int               `json:"lock_version"`
}

// --- Interface ---

type RevisionService interface {
	ListRevisions(ctx context.Context, documentID string) ([]RevisionSummary, error)
	GetRevision(ctx context.Context, documentID, revisionID string) (*RevisionResponse, error)
	CreateRevision(ctx context.Context, documentID string, req CreateRevisionRequest) (*RevisionMutation, error)
	UpdateRevision(ctx context.Context, documentID, revisionID string, req UpdateRevisionRequest) (*RevisionMutation, error)
	ApproveRevision(ctx context.Context, documentID, revisionID string, req LockRequest) (*RevisionMutation, error)
	DiscardRevision(ctx context.Context, documentID, revisionID string, lockVersion int) (*RevisionMutation, error)
}

type revisionService struct {
	docs      repository.DocumentRepository
	revisions repository.RevisionRepository
	companies repository.CompanyRepository
	builder   revisionBuilder
	audit     AuditService
	tx        repository.TransactionManager
	notifier  Notifier
}

func NewRevisionService(
	docs repository.DocumentRepository,
	revisions repository.RevisionRepository,
	companies repository.CompanyRepository,
	contacts repository.ContactRepository,
	taxCodes repository.TaxCodeRepository,
	audit AuditService,
	tx repository.TransactionManager,
	notifier Notifier,
) RevisionService {
	return &revisionService{
		docs:      docs,
		revisions: revisions,
		companies: companies,
		builder:   revisionBuilder{contacts: contacts, taxCodes: taxCodes},
		audit:     audit,
		tx:        tx,
		notifier:  orNoop(notifier),
	}
}

// --- Implementation ---

func (s *revisionService) ListRevisions(ctx context.Context, documentID string) ([]RevisionSummary, error) {
	doc, err := loadDocument(ctx, s.docs, documentID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	revs, err := s.revisions.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	res := make([]RevisionSummary, 0, len(revs))
	for i := range revs {
		res = append(res, toRevisionSummary(&revs[i]))
	}
	return res, nil
}

func (s *revisionService) GetRevision(ctx context.Context, documentID, revisionID string) (*RevisionResponse, error) {
	doc, err := loadDocument(ctx, s.docs, documentID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	rev, err := s.loadRevision(ctx, doc.ID, revisionID)
	if err != nil {
		return nil, err
	}
	return toRevisionResponse(rev), nil
}

// CreateRevision opens a new DRAFT from the current revision plus the patch.
// An approved current revision is superseded; an existing draft is a conflict.
func (s *revisionService) CreateRevision(ctx context.Context, documentID string, req CreateRevisionRequest) (*RevisionMutation, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}

	var result RevisionMutation
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := loadDocument(txCtx, s.docs, documentID, rbac.ActionUpdate)
		if err != nil {
			return err
		}
		version, err := s.docs.UpdateWithLock(txCtx, doc.ID, *req.LockVersion, nil)
		if err != nil {
			return err
		}
		doc.LockVersion = version

		current, err := s.revisions.FindCurrent(txCtx, doc.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load current revision: %w", err)
		}

		var rev *model.DocumentRevision
		switch {
		case current == nil:
			company, err := s.companies.FindByID(txCtx, doc.CompanyID)
			if err != nil {
				return loadErr(err, "Company")
			}
			rev = &model.DocumentRevision{
				Currency:     company.HomeCurrency,
				HomeCurrency: company.HomeCurrency,
				ExchangeRate: decimal.NewFromInt(1),
			}
		case current.Status == model.RevisionDraft:
			return apperr.Conflict("a draft revision already exists").
				WithDetails(map[string]string{"revision_id": current.ID.String()})
		default:
			if err := s.revisions.Transition(txCtx, current.ID, current.Status, model.RevisionSuperseded,
				map[string]interface{}{"superseded_at": time.Now()}); err != nil {
				return err
			}
			rev = copyRevision(current)
		}

		number, err := s.revisions.NextNumber(txCtx, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to number revision: %w", err)
		}
		rev.TenantID = doc.TenantID
		rev.DocumentID = doc.ID
		rev.RevisionNumber = number
		rev.Status = model.RevisionDraft
		rev.Source = model.RevisionSourceManual
		rev.CreatedBy = p.UserIDPtr()

		if err := s.builder.apply(txCtx, doc, rev, req.RevisionInput); err != nil {
			return err
		}
		if err := s.revisions.Create(txCtx, rev); err != nil {
			return fmt.Errorf("failed to create revision: %w", err)
		}

		result = RevisionMutation{Revision: toRevisionResponse(rev), LockVersion: version}
		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &doc.TenantID,
			CompanyID:  &doc.CompanyID,
			Action:     model.ActionRevisionCreated,
			EntityType: model.EntityRevision,
			EntityID:   rev.ID.String(),
			After:      result.Revision,
		}); err != nil {
			return err
		}
		s.publish(txCtx, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *revisionService) UpdateRevision(ctx context.Context, documentID, revisionID string, req UpdateRevisionRequest) (*RevisionMutation, error) {
	var result RevisionMutation
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := loadDocument(txCtx, s.docs, documentID, rbac.ActionUpdate)
		if err != nil {
			return err
		}
		rev, err := s.loadRevision(txCtx, doc.ID, revisionID)
		if err != nil {
			return err
		}
		if !workflow.IsEditable(rev.Status) {
			return apperr.Conflict("revision is immutable").WithDetails(map[string]string{"status": rev.Status})
		}
		before := toRevisionResponse(rev)

		version, err := s.docs.UpdateWithLock(txCtx, doc.ID, *req.LockVersion, nil)
		if err != nil {
			return err
		}
		doc.LockVersion = version

		if err := s.builder.apply(txCtx, doc, rev, req.RevisionInput); err != nil {
			return err
		}
		if err := s.revisions.SaveDraft(txCtx, rev); err != nil {
			return err
		}

		result = RevisionMutation{Revision: toRevisionResponse(rev), LockVersion: version}
		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &doc.TenantID,
			CompanyID:  &doc.CompanyID,
			Action:     model.ActionRevisionUpdated,
			EntityType: model.EntityRevision,
			EntityID:   rev.ID.String(),
			Before:     before,
			After:      result.Revision,
		}); err != nil {
			return err
		}
		s.publish(txCtx, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ApproveRevision makes a DRAFT the authoritative revision. Drafts with ERROR
// issues and documents with an open or confirmed duplicate flag are refused.
func (s *revisionService) ApproveRevision(ctx context.Context, documentID, revisionID string, req LockRequest) (*RevisionMutation, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}

	var result RevisionMutation
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := loadDocument(txCtx, s.docs, documentID, rbac.ActionApprove)
		if err != nil {
			return err
		}
		rev, err := s.loadRevision(txCtx, doc.ID, revisionID)
		if err != nil {
			return err
		}
		if err := workflow.Revision.Check(rev.Status, model.RevisionApproved); err != nil {
			return err
		}
		switch doc.DuplicateStatus {
		case model.DuplicateSuspected:
			return apperr.Conflict("resolve the suspected duplicate before approving")
		case model.DuplicateConfirmed:
			return apperr.Conflict("a confirmed duplicate cannot be approved")
		}

		issues := reconcile.Validate(rev)
		if reconcile.HasErrors(issues) {
			return apperr.Validation("revision has blocking validation issues").
				WithDetails(map[string]interface{}{"validation_issues": issues})
		}

		version, err := s.docs.UpdateWithLock(txCtx, doc.ID, *req.LockVersion, nil)
		if err != nil {
			return err
		}
		doc.LockVersion = version

		now := time.Now()
		if err := s.revisions.Transition(txCtx, rev.ID, model.RevisionDraft, model.RevisionApproved, map[string]interface{}{
			"approved_by":       p.UserIDPtr(),
			"approved_at":       now,
			"validation_issues": datatypes.JSONSlice[model.ValidationIssue](issues),
		}); err != nil {
			return err
		}
		rev.Status = model.RevisionApproved
		rev.ApprovedBy = p.UserIDPtr()
		rev.ApprovedAt = &now
		rev.ValidationIssues = issues

		result = RevisionMutation{Revision: toRevisionResponse(rev), LockVersion: version}
		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &doc.TenantID,
			CompanyID:  &doc.CompanyID,
			Action:     model.ActionApprove,
			EntityType: model.EntityRevision,
			EntityID:   rev.ID.String(),
			Before:     map[string]string{"status": model.RevisionDraft},
			After:      map[string]string{"status": model.RevisionApproved},
		}); err != nil {
			return err
		}
		s.publish(txCtx, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DiscardRevision deletes a DRAFT. A revision it superseded stays superseded.
func (s *revisionService) DiscardRevision(ctx context.Context, documentID, revisionID string, lockVersion int) (*RevisionMutation, error) {
	var result RevisionMutation
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := loadDocument(txCtx, s.docs, documentID, rbac.ActionUpdate)
		if err != nil {
			return err
		}
		rev, err := s.loadRevision(txCtx, doc.ID, revisionID)
		if err != nil {
			return err
		}
		version, err := s.docs.UpdateWithLock(txCtx, doc.ID, lockVersion, nil)
		if err != nil {
			return err
		}
		doc.LockVersion = version

		if err := s.revisions.DeleteDraft(txCtx, rev.ID); err != nil {
			return err
		}
		result = RevisionMutation{LockVersion: version}
		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &doc.TenantID,
			CompanyID:  &doc.CompanyID,
			Action:     model.ActionRevisionDiscarded,
			EntityType: model.EntityRevision,
			EntityID:   rev.ID.String(),
			Before:     toRevisionResponse(rev),
		}); err != nil {
			return err
		}
		s.publish(txCtx, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// --- Helpers ---

func (s *revisionService) loadRevision(ctx context.Context, documentID uuid.UUID, revisionID string) (*model.DocumentRevision, error) {
	id, err := parseID(revisionID, "revision id")
	if err != nil {
		return nil, err
	}
	rev, err := s.revisions.FindByID(ctx, documentID, id)
	if err != nil {
		return nil, loadErr(err, "Revision")
	}
	return rev, nil
}

func (s *revisionService) publish(ctx context.Context, doc *model.ProcessingDocument) {
	ev := documentEvent(doc)
	repository.AfterCommit(ctx, func() { s.notifier.PublishDocument(ev) })
}

// loadDocument fetches a document of the caller's tenant. Documents outside the
// caller's read allow-list are reported as missing; a readable document without
// the requested action is PERMISSION_DENIED.
func loadDocument(ctx context.Context, docs repository.DocumentRepository, id, action string) (*model.ProcessingDocument, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	docID, err := parseID(id, "document id")
	if err != nil {
		return nil, err
	}
	doc, err := docs.FindByID(ctx, docID, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, loadErr(err, "Document")
	}
	if !p.CanInCompany(rbac.ResourceDocuments, rbac.ActionRead, doc.CompanyID) {
		return nil, apperr.NotFound("Document")
	}
	if err := p.RequireCompany(rbac.ResourceDocuments, action, doc.CompanyID); err != nil {
		return nil, err
	}
	return doc, nil
}

// copyRevision clones header and lines into a fresh unsaved revision
func copyRevision(src *model.DocumentRevision) *model.DocumentRevision {
	rev := &model.DocumentRevision{
		VendorName:     src.VendorName,
		ContactID:      src.ContactID,
		DocumentNumber: src.DocumentNumber,
		DocumentDate:   src.DocumentDate,
		DueDate:        src.DueDate,
		Currency:       src.Currency,
		HomeCurrency:   src.HomeCurrency,
		ExchangeRate:   src.ExchangeRate,
		Subtotal:       src.Subtotal,
		TaxAmount:      src.TaxAmount,
		TotalAmount:    src.TotalAmount,
		Notes:          src.Notes,
	}
	rev.LineItems = make([]model.LineItem, 0, len(src.LineItems))
	for _, l := range src.LineItems {
		l.ID = uuid.Nil
		l.RevisionID = uuid.Nil
		l.CreatedAt = time.Time{}
		l.UpdatedAt = time.Time{}
		rev.LineItems = append(rev.LineItems, l)
	}
	return rev
}

// revisionBuilder fills in the parts of a revision derived from other tables:
// the linked contact and GST amounts defaulted from tax codes
type revisionBuilder struct {
	contacts repository.ContactRepository
	taxCodes repository.TaxCodeRepository
}

// apply patches rev with in, then links the vendor and reconciles amounts
func (b revisionBuilder) apply(ctx context.Context, doc *model.ProcessingDocument, rev *model.DocumentRevision, in RevisionInput) error {
	vendorChanged := false
	if in.VendorName != nil {
		vendorChanged = strings.TrimSpace(*in.VendorName) != rev.VendorName
		rev.VendorName = strings.TrimSpace(*in.VendorName)
	}
	if in.DocumentNumber != nil {
		rev.DocumentNumber = strings.TrimSpace(*in.DocumentNumber)
	}
	if in.DocumentDate != nil {
		d, err := parseOptionalDate(in.DocumentDate, "document_date")
		if err != nil {
			return err
		}
		rev.DocumentDate = d
	}
	if in.DueDate != nil {
		d, err := parseOptionalDate(in.DueDate, "due_date")
		if err != nil {
			return err
		}
		rev.DueDate = d
	}
	if in.Currency != nil {
		rev.Currency = reconcile.NormalizeCurrency(*in.Currency)
	}
	if in.ExchangeRate != nil {
		rev.ExchangeRate = *in.ExchangeRate
	}
	if in.Subtotal != nil {
		rev.Subtotal = *in.Subtotal
	}
	if in.TaxAmount != nil {
		rev.TaxAmount = *in.TaxAmount
	}
	if in.TotalAmount != nil {
		rev.TotalAmount = *in.TotalAmount
	}
	if in.Notes != nil {
		rev.Notes = *in.Notes
	}

	var explicitGST map[int]bool
	if in.LineItems != nil {
		rev.LineItems, explicitGST = lineItemsFromInput(*in.LineItems)
	}

	switch {
	case in.ContactID != nil && strings.TrimSpace(*in.ContactID) != "":
		contactID, err := parseID(*in.ContactID, "contact_id")
		if err != nil {
			return err
		}
		if _, err := b.contacts.FindByID(ctx, contactID, func(db *gorm.DB) *gorm.DB {
			return db.Where("company_id = ?", doc.CompanyID)
		}); err != nil {
			return loadErr(err, "Contact")
		}
		rev.ContactID = &contactID
	case in.ContactID != nil:
		rev.ContactID = nil
	case vendorChanged || rev.ContactID == nil:
		if err := b.linkContact(ctx, doc.CompanyID, rev); err != nil {
			return err
		}
	}

	if err := b.defaultGST(ctx, doc.TenantID, rev, explicitGST); err != nil {
		return err
	}
	reconcile.Reconcile(rev)
	return nil
}

// linkContact points the revision at the company contact named like its vendor
func (b revisionBuilder) linkContact(ctx context.Context, companyID uuid.UUID, rev *model.DocumentRevision) error {
	rev.ContactID = nil
	if rev.VendorName == "" {
		return nil
	}
	contact, err := b.contacts.FindByName(ctx, companyID, rev.VendorName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to match vendor contact: %w", err)
	}
	rev.ContactID = &contact.ID
	return nil
}

// defaultGST computes GST for lines with a tax code and no explicit amount,
// using the rate active on the document date
func (b revisionBuilder) defaultGST(ctx context.Context, tenantID uuid.UUID, rev *model.DocumentRevision, explicit map[int]bool) error {
	on := time.Now()
	if rev.DocumentDate != nil {
		on = *rev.DocumentDate
	}
	rates := map[string]*decimal.Decimal{}
	for i := range rev.LineItems {
		line := &rev.LineItems[i]
		if line.TaxCode == "" || explicit[i] || !line.GSTAmount.IsZero() {
			continue
		}
		rate, seen := rates[line.TaxCode]
		if !seen {
			tc, err := b.taxCodes.FindActiveByCode(ctx, tenantID, line.TaxCode, on)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
			case err != nil:
				return fmt.Errorf("failed to look up tax code: %w", err)
			default:
				rate = &tc.Rate
			}
			rates[line.TaxCode] = rate
		}
		if rate == nil {
			continue
		}
		amount := line.Amount
		if amount.IsZero() {
			amount = line.Quantity.Mul(line.UnitPrice)
		}
		line.GSTAmount = reconcile.Round2(amount.Mul(*rate))
	}
	return nil
}

// lineItemsFromInput maps request lines to models and reports which lines
// carried an explicit GST amount
func lineItemsFromInput(in []LineItemInput) ([]model.LineItem, map[int]bool) {
	lines := make([]model.LineItem, 0, len(in))
	explicit := make(map[int]bool, len(in))
	for i, l := range in {
		line := model.LineItem{
			LineNumber:           i + 1,
			Description:          strings.TrimSpace(l.Description),
			Quantity:             l.Quantity,
			UnitPrice:            l.UnitPrice,
			Amount:               l.Amount,
			TaxCode:              strings.ToUpper(strings.TrimSpace(l.TaxCode)),
			IsHomeAmountOverride: l.IsHomeAmountOverride && l.HomeAmount != nil,
			IsHomeGSTOverride:    l.IsHomeGSTOverride && l.HomeGSTAmount != nil,
		}
		if l.GSTAmount != nil {
			line.GSTAmount = *l.GSTAmount
			explicit[i] = true
		}
		if line.IsHomeAmountOverride {
			line.HomeAmount = reconcile.Round2(*l.HomeAmount)
		}
		if line.IsHomeGSTOverride {
			line.HomeGSTAmount = reconcile.Round2(*l.HomeGSTAmount)
		}
		lines = append(lines, line)
	}
	return lines, explicit
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func toLineItemResponse(l model.LineItem) LineItemResponse {
	return LineItemResponse{
		ID:                   l.ID.String(),
		LineNumber:           l.LineNumber,
		Description:          l.Description,
		Quantity:             l.Quantity.String(),
		UnitPrice:            l.UnitPrice.String(),
		Amount:               money(l.Amount),
		TaxCode:              l.TaxCode,
		GSTAmount:            money(l.GSTAmount),
		HomeAmount:           money(l.HomeAmount),
		HomeGSTAmount:        money(l.HomeGSTAmount),
		IsHomeAmountOverride: l.IsHomeAmountOverride,
		IsHomeGSTOverride:    l.IsHomeGSTOverride,
	}
}

func toRevisionResponse(r *model.DocumentRevision) *RevisionResponse {
	lines := make([]LineItemResponse, 0, len(r.LineItems))
	for _, l := range r.LineItems {
		lines = append(lines, toLineItemResponse(l))
	}
	issues := []model.ValidationIssue(r.ValidationIssues)
	if issues == nil {
		issues = []model.ValidationIssue{}
	}
	return &RevisionResponse{
		ID:               r.ID.String(),
		DocumentID:       r.DocumentID.String(),
		RevisionNumber:   r.RevisionNumber,
		Status:           r.Status,
		Source:           r.Source,
		VendorName:       r.VendorName,
		ContactID:        idString(r.ContactID),
		DocumentNumber:   r.DocumentNumber,
		DocumentDate:     formatDate(r.DocumentDate),
		DueDate:          formatDate(r.DueDate),
		Currency:         r.Currency,
		HomeCurrency:     r.HomeCurrency,
		ExchangeRate:     r.ExchangeRate.String(),
		Subtotal:         money(r.Subtotal),
		TaxAmount:        money(r.TaxAmount),
		TotalAmount:      money(r.TotalAmount),
		HomeSubtotal:     money(r.HomeSubtotal),
		HomeTaxAmount:    money(r.HomeTaxAmount),
		HomeTotal:        money(r.HomeTotal),
		Notes:            r.Notes,
		ValidationIssues: issues,
		LineItems:        lines,
		CreatedBy:        idString(r.CreatedBy),
		ApprovedBy:       idString(r.ApprovedBy),
		ApprovedAt:       formatTimePtr(r.ApprovedAt),
		SupersededAt:     formatTimePtr(r.SupersededAt),
		CreatedAt:        formatTime(r.CreatedAt),
		UpdatedAt:        formatTime(r.UpdatedAt),
	}
}

func toRevisionSummary(r *model.DocumentRevision) RevisionSummary {
	return RevisionSummary{
		ID:             r.ID.String(),
		RevisionNumber: r.RevisionNumber,
		Status:         r.Status,
		Source:         r.Source,
		VendorName:     r.VendorName,
		DocumentNumber: r.DocumentNumber,
		Currency:       r.Currency,
		TotalAmount:    money(r.TotalAmount),
		HomeTotal:      money(r.HomeTotal),
		IssueCount:     len(r.ValidationIssues),
		ApprovedAt:     formatTimePtr(r.ApprovedAt),
		CreatedAt:      formatTime(r.CreatedAt),
	}
}
