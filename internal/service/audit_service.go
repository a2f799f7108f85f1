package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"
	"backoffice/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type requestMetaKey struct{}

// RequestMeta is the client information recorded on audit rows
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WithRequestMeta stores request metadata on the context
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func requestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// --- DTOs ---

// AuditEntry describes one audited mutation
type AuditEntry struct {
	TenantID   *uuid.UUID // defaults to the principal's tenant
	CompanyID  *uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Before     interface{}
	After      interface{}
}

type AuditListRequest struct {
	EntityType string
	EntityID   string
	Action     string
	UserID     string
	CompanyID  string
	From       string
	To         string
	Page       int
	Limit      int
}

type AuditLogResponse struct {
	ID         string          `json:"id"`
	TenantID   *string         `json:"tenant_id"`
	UserID     *string         `json:"user_id"`
	UserName   string          `json:"user_name"`
	CompanyID  *string         `json:"company_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Changes    json.RawMessage `json:"changes"`
	RequestID  string          `json:"request_id"`
	IPAddress  string          `json:"ip_address"`
	UserAgent  string          `json:"user_agent"`
	CreatedAt  string          `json:"created_at"`
}

// --- Interface ---

type AuditService interface {
	Record(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, req AuditListRequest) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// --- Implementation ---

// Record writes an audit row through the transaction on ctx, if any. Request
// metadata is best-effort: anything missing from ctx is stored empty.
func (s *auditService) Record(ctx context.Context, entry AuditEntry) error {
	row := model.AuditLog{
		TenantID:   entry.TenantID,
		CompanyID:  entry.CompanyID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
	}

	if p, ok := tenancy.FromContext(ctx); ok {
		row.UserID = p.UserIDPtr()
		if row.TenantID == nil {
			row.TenantID = p.TenantID
		}
	}
	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		row.RequestID = requestID
	}
	meta := requestMetaFrom(ctx)
	row.IPAddress = meta.IPAddress
	row.UserAgent = meta.UserAgent

	if entry.Before != nil || entry.After != nil {
		changes, err := json.Marshal(map[string]interface{}{"before": entry.Before, "after": entry.After})
		if err != nil {
			return fmt.Errorf("failed to encode audit changes: %w", err)
		}
		row.Changes = datatypes.JSON(changes)
	}

	if err := s.repo.Log(ctx, &row); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *auditService) List(ctx context.Context, req AuditListRequest) ([]AuditLogResponse, int64, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, 0, err
	}

	page, limit := normalizePage(req.Page, req.Limit)
	filter := repository.AuditFilter{
		Scopes: []repository.Scope{
			tenancy.Scope(p, "audit_logs.tenant_id"),
			auditCompanyScope(p),
		},
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Action:     req.Action,
		Page:       page,
		Limit:      limit,
	}
	if filter.UserID, err = parseOptionalID(&req.UserID, "user_id"); err != nil {
		return nil, 0, err
	}
	if filter.CompanyID, err = parseOptionalID(&req.CompanyID, "company_id"); err != nil {
		return nil, 0, err
	}
	if filter.From, err = parseOptionalDate(&req.From, "from"); err != nil {
		return nil, 0, err
	}
	to, err := parseOptionalDate(&req.To, "to")
	if err != nil {
		return nil, 0, err
	}
	if to != nil {
		end := to.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}

	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, toAuditLogResponse(l))
	}
	return res, total, nil
}

// --- Helpers ---

// auditCompanyScope hides rows of companies outside the caller's audit reach.
// Rows without a company are only visible to tenant-wide readers.
func auditCompanyScope(p *tenancy.Principal) repository.Scope {
	acc := p.Access(rbac.ResourceAuditLogs, rbac.ActionRead)
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case acc.All && len(acc.Denied) == 0:
			return db
		case acc.All:
			return db.Where("audit_logs.company_id IS NULL OR audit_logs.company_id NOT IN ?", acc.Denied)
		case len(acc.Allowed) == 0:
			return db.Where("1 = 0")
		default:
			return db.Where("audit_logs.company_id IN ?", acc.Allowed)
		}
	}
}

func toAuditLogResponse(l model.AuditLog) AuditLogResponse {
	userName := "System"
	if l.User != nil {
		userName = l.User.Name
	}
	changes := json.RawMessage("null")
	if len(l.Changes) > 0 {
		changes = json.RawMessage(l.Changes)
	}
	return AuditLogResponse{
		ID:         l.ID.String(),
		TenantID:   idString(l.TenantID),
		UserID:     idString(l.UserID),
		UserName:   userName,
		CompanyID:  idString(l.CompanyID),
		Action:     l.Action,
		EntityType: l.EntityType,
		EntityID:   l.EntityID,
		Changes:    changes,
		RequestID:  l.RequestID,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
		CreatedAt:  formatTime(l.CreatedAt),
	}
}
