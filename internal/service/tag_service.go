package service

import (
	"context"
	"fmt"
	"strings"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateTagRequest struct {
	Name      string  `json:"name" binding:"required,max=100"`
	Color     string  `json:"color" binding:"omitempty,max=20"`
	CompanyID *string `json:"company_id" binding:"omitempty,uuid"`
}

type UpdateTagRequest struct {
	Name  *string `json:"name" binding:"omitempty,max=100"`
	Color *string `json:"color" binding:"omitempty,max=20"`
}

type TagResponse struct {
	ID        string  `json:"id"`
	CompanyID *string `json:"company_id"`
	Name      string  `json:"name"`
	Color     string  `json:"color"`
	Shared    bool    `json:"shared"`
	CreatedAt string  `json:"created_at"`
}

// --- Interface ---

type TagService interface {
	ListTags(ctx context.Context, companyID string) ([]TagResponse, error)
	CreateTag(ctx context.Context, req CreateTagRequest) (*TagResponse, error)
	UpdateTag(ctx context.Context, id string, req UpdateTagRequest) (*TagResponse, error)
	DeleteTag(ctx context.Context, id string) error
}

type tagService struct {
	repo      repository.TagRepository
	companies repository.CompanyRepository
	audit     AuditService
	tx        repository.TransactionManager
}

func NewTagService(repo repository.TagRepository, companies repository.CompanyRepository, audit AuditService, tx repository.TransactionManager) TagService {
	return &tagService{repo: repo, companies: companies, audit: audit, tx: tx}
}

// --- Implementation ---

// ListTags returns the tenant-shared tags plus, when companyID is given, that company's own tags
func (s *tagService) ListTags(ctx context.Context, companyID string) ([]TagResponse, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	cid, err := parseOptionalID(&companyID, "company_id")
	if err != nil {
		return nil, err
	}
	if cid != nil && !p.CanInCompany(rbac.ResourceTags, rbac.ActionRead, *cid) {
		return nil, apperr.Forbidden("missing permission tags.read for this company")
	}

	tags, err := s.repo.List(ctx, cid, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	res := make([]TagResponse, 0, len(tags))
	for _, t := range tags {
		res = append(res, toTagResponse(t))
	}
	return res, nil
}

func (s *tagService) CreateTag(ctx context.Context, req CreateTagRequest) (*TagResponse, error) {
	p, tenantID, err := tenancy.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	companyID, err := parseOptionalID(req.CompanyID, "company_id")
	if err != nil {
		return nil, err
	}
	if err := s.checkManage(p, companyID); err != nil {
		return nil, err
	}

	tag := &model.Tag{
		TenantID:  tenantID,
		CompanyID: companyID,
		Name:      strings.TrimSpace(req.Name),
		Color:     req.Color,
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if companyID != nil {
			if _, err := s.companies.FindByID(txCtx, *companyID, tenancy.Scope(p, "tenant_id")); err != nil {
				return loadErr(err, "Company")
			}
		}
		if err := s.ensureNameFree(txCtx, tag, nil); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, tag); err != nil {
			return fmt.Errorf("failed to create tag: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  companyID,
			Action:     model.ActionCreate,
			EntityType: model.EntityTag,
			EntityID:   tag.ID.String(),
			After:      toTagResponse(*tag),
		})
	})
	if err != nil {
		return nil, err
	}
	res := toTagResponse(*tag)
	return &res, nil
}

func (s *tagService) UpdateTag(ctx context.Context, id string, req UpdateTagRequest) (*TagResponse, error) {
	var tag *model.Tag
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if tag, err = s.loadForManage(txCtx, id); err != nil {
			return err
		}
		before := toTagResponse(*tag)
		if req.Name != nil {
			tag.Name = strings.TrimSpace(*req.Name)
			if tag.Name == "" {
				return apperr.Validation("name cannot be empty")
			}
			if err := s.ensureNameFree(txCtx, tag, &tag.ID); err != nil {
				return err
			}
		}
		if req.Color != nil {
			tag.Color = *req.Color
		}
		if err := s.repo.Update(txCtx, tag); err != nil {
			return fmt.Errorf("failed to update tag: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  tag.CompanyID,
			Action:     model.ActionUpdate,
			EntityType: model.EntityTag,
			EntityID:   tag.ID.String(),
			Before:     before,
			After:      toTagResponse(*tag),
		})
	})
	if err != nil {
		return nil, err
	}
	res := toTagResponse(*tag)
	return &res, nil
}

func (s *tagService) DeleteTag(ctx context.Context, id string) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		tag, err := s.loadForManage(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(txCtx, tag.ID); err != nil {
			return fmt.Errorf("failed to delete tag: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  tag.CompanyID,
			Action:     model.ActionDelete,
			EntityType: model.EntityTag,
			EntityID:   tag.ID.String(),
			Before:     toTagResponse(*tag),
		})
	})
}

// --- Helpers ---

func (s *tagService) loadForManage(ctx context.Context, id string) (*model.Tag, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	tagID, err := parseID(id, "tag id")
	if err != nil {
		return nil, err
	}
	tag, err := s.repo.FindByID(ctx, tagID, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, loadErr(err, "Tag")
	}
	if err := s.checkManage(p, tag.CompanyID); err != nil {
		return nil, err
	}
	return tag, nil
}

// checkManage requires a tenant-wide grant for shared tags and a company grant otherwise
func (s *tagService) checkManage(p *tenancy.Principal, companyID *uuid.UUID) error {
	if companyID == nil {
		if !p.Access(rbac.ResourceTags, rbac.ActionManage).All {
			return apperr.Forbidden("tenant-wide tags.manage permission required for shared tags")
		}
		return nil
	}
	return p.RequireCompany(rbac.ResourceTags, rbac.ActionManage, *companyID)
}

func (s *tagService) ensureNameFree(ctx context.Context, tag *model.Tag, excludeID *uuid.UUID) error {
	taken, err := s.repo.NameTaken(ctx, tag.TenantID, tag.CompanyID, tag.Name, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check tag name: %w", err)
	}
	if taken {
		return apperr.Conflict("tag '%s' already exists", tag.Name).WithDetails(map[string]string{"name": tag.Name})
	}
	return nil
}

// resolveDocumentTags loads the tags and checks each may be attached to a
// document of the given company
func resolveDocumentTags(ctx context.Context, repo repository.TagRepository, doc *model.ProcessingDocument, ids []uuid.UUID) ([]model.Tag, error) {
	tags, err := repo.FindByIDs(ctx, ids, func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", doc.TenantID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}
	if len(tags) != len(ids) {
		return nil, apperr.NotFound("Tag")
	}
	for _, t := range tags {
		if t.CompanyID != nil && *t.CompanyID != doc.CompanyID {
			return nil, apperr.Validation("tag '%s' belongs to another company", t.Name).
				WithDetails(map[string]string{"tag_id": t.ID.String()})
		}
	}
	return tags, nil
}

func toTagResponse(t model.Tag) TagResponse {
	return TagResponse{
		ID:        t.ID.String(),
		CompanyID: idString(t.CompanyID),
		Name:      t.Name,
		Color:     t.Color,
		Shared:    t.CompanyID == nil,
		CreatedAt: formatTime(t.CreatedAt),
	}
}
