package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/repository"
	"backoffice/internal/storage"
	"backoffice/internal/tenancy"
	"backoffice/internal/workflow"
	"backoffice/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const maxFileNameLength = 255

// allowedMimeTypes are matched against the sniffed content, never the client's header
var allowedMimeTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/webp",
	"image/gif",
}

// ExtractionQueue accepts documents whose extraction should start
type ExtractionQueue interface {
	Enqueue(documentID uuid.UUID)
}

// --- DTOs ---

type UploadDocumentInput struct {
	CompanyID   string
	FileName    string
	Content     io.Reader
	AutoExtract bool
}

type DocumentListRequest struct {
	CompanyID       string
	PipelineStatus  string
	DuplicateStatus string
	TagID           string
	ParentID        string
	Search          string
	Page            int
	Limit           int
}

type DocumentResponse struct {
	ID                 string        `json:"id"`
	TenantID           string        `json:"tenant_id"`
	CompanyID          string        `json:"company_id"`
	CompanyName        string        `json:"company_name,omitempty"`
	ParentID           *string       `json:"parent_id"`
	PageFrom           *int          `json:"page_from"`
	PageTo             *int          `json:"page_to"`
	FileName           string        `json:"file_name"`
	MimeType           string        `json:"mime_type"`
	FileSize           int64         `json:"file_size"`
	FileHash           string        `json:"file_hash"`
	PipelineStatus     string        `json:"pipeline_status"`
	ExtractionAttempts int           `json:"extraction_attempts"`
	LastError          string        `json:"last_error,omitempty"`
	DuplicateStatus    string        `json:"duplicate_status"`
	DuplicateOfID      *string       `json:"duplicate_of_id"`
	DuplicateReason    string        `json:"duplicate_reason,omitempty"`
	DuplicateDecidedBy *string       `json:"duplicate_decided_by,omitempty"`
	DuplicateDecidedAt *string       `json:"duplicate_decided_at,omitempty"`
	LockVersion        int           `json:"lock_version"`
	UploadedBy         *string       `json:"uploaded_by"`
	Tags               []TagResponse `json:"tags"`
	CreatedAt          string        `json:"created_at"`
	UpdatedAt          string        `json:"updated_at"`
}

type DocumentDetailResponse struct {
	DocumentResponse
	CurrentRevision *RevisionResponse  `json:"current_revision"`
	Revisions       []RevisionSummary  `json:"revisions"`
	DuplicateOf     *DocumentResponse  `json:"duplicate_of"`
	Children        []DocumentResponse `json:"children"`
}

type PageRange struct {
	From int `json:"from" binding:"required,min=1"`
	To   int `json:"to" binding:"required,min=1"`
}

type SplitDocumentRequest struct {
	LockVersion *int        `json:"lock_version" binding:"required,min=0"`
	Ranges      []PageRange `json:"ranges" binding:"required,min=1,dive"`
}

type DuplicateDecisionRequest struct {
	LockVersion *int   `json:"lock_version" binding:"required,min=0"`
	Decision    string `json:"decision" binding:"required,oneof=CONFIRMED REJECTED"`
	Reason      string `json:"reason" binding:"max=1000"`
}

type ReplaceTagsRequest struct {
	LockVersion *int     `json:"lock_version" binding:"required,min=0"`
	TagIDs      []string `json:"tag_ids"`
}

// DocumentFile is either a presigned URL or an open stream of the original file
type DocumentFile struct {
	URL      string
	Content  io.ReadCloser
	FileName string
	MimeType string
	Size     int64
}

// --- Interface ---

type DocumentService interface {
	Upload(ctx context.Context, in UploadDocumentInput) (*DocumentResponse, error)
	List(ctx context.Context, req DocumentListRequest) ([]DocumentResponse, int64, error)
	Get(ctx context.Context, id string) (*DocumentDetailResponse, error)
	OpenFile(ctx context.Context, id string) (*DocumentFile, error)
	Delete(ctx context.Context, id string, lockVersion int) error
	TriggerExtraction(ctx context.Context, id string, req LockRequest) (*DocumentResponse, error)
	Split(ctx context.Context, id string, req SplitDocumentRequest) (*DocumentDetailResponse, error)
	DecideDuplicate(ctx context.Context, id string, req DuplicateDecisionRequest) (*DocumentResponse, error)
	ReplaceTags(ctx context.Context, id string, req ReplaceTagsRequest) (*DocumentResponse, error)
	AddTag(ctx context.Context, id, tagID string, req LockRequest) (*DocumentResponse, error)
	RemoveTag(ctx context.Context, id, tagID string, lockVersion int) (*DocumentResponse, error)
}

type documentService struct {
	docs      repository.DocumentRepository
	revisions repository.RevisionRepository
	tags      repository.TagRepository
	companies repository.CompanyRepository
	store     storage.ObjectStore
	queue     ExtractionQueue
	audit     AuditService
	tx        repository.TransactionManager
	notifier  Notifier
	maxBytes  int64
}

func NewDocumentService(
	docs repository.DocumentRepository,
	revisions repository.RevisionRepository,
	tags repository.TagRepository,
	companies repository.CompanyRepository,
	store storage.ObjectStore,
	queue ExtractionQueue,
	audit AuditService,
	tx repository.TransactionManager,
	notifier Notifier,
	maxBytes int64,
) DocumentService {
	return &documentService{
		docs:      docs,
		revisions: revisions,
		tags:      tags,
		companies: companies,
		store:     store,
		queue:     queue,
		audit:     audit,
		tx:        tx,
		notifier:  orNoop(notifier),
		maxBytes:  maxBytes,
	}
}

// --- Implementation ---

// Upload sniffs, stores and registers a new document. An identical file already
// uploaded to the same company flags the new document as a suspected duplicate.
func (s *documentService) Upload(ctx context.Context, in UploadDocumentInput) (*DocumentResponse, error) {
	p, tenantID, err := tenancy.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	companyID, err := parseID(in.CompanyID, "company_id")
	if err != nil {
		return nil, err
	}
	company, err := s.companies.FindByID(ctx, companyID, tenancy.Scope(p, "tenant_id"))
	if err != nil {
		return nil, loadErr(err, "Company")
	}
	if err := p.RequireCompany(rbac.ResourceDocuments, rbac.ActionCreate, company.ID); err != nil {
		return nil, err
	}

	data, mimeType, err := s.readUpload(in.Content)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)

	doc := &model.ProcessingDocument{
		ID:              uuid.New(),
		TenantID:        tenantID,
		CompanyID:       company.ID,
		FileName:        cleanFileName(in.FileName),
		MimeType:        mimeType,
		FileSize:        int64(len(data)),
		FileHash:        hex.EncodeToString(sum[:]),
		PipelineStatus:  model.PipelineUploaded,
		DuplicateStatus: model.DuplicateNone,
		UploadedBy:      p.UserIDPtr(),
	}
	doc.StorageKey = storage.DocumentKey(tenantID, company.ID, doc.ID, doc.FileName)

	if err := s.store.Put(ctx, doc.StorageKey, bytes.NewReader(data), doc.FileSize, mimeType); err != nil {
		return nil, apperr.Wrap(apperr.CodeServiceUnavailable, err, "failed to store file")
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		original, err := s.docs.FindByHash(txCtx, company.ID, doc.FileHash, doc.ID)
		switch {
		case err == nil:
			doc.DuplicateStatus = model.DuplicateSuspected
			doc.DuplicateOfID = &original.ID
			doc.DuplicateReason = "identical file already uploaded as " + original.FileName
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to check for duplicates: %w", err)
		}

		if in.AutoExtract {
			doc.PipelineStatus = model.PipelineQueued
		}
		if err := s.docs.Create(txCtx, doc); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &tenantID,
			CompanyID:  &company.ID,
			Action:     model.ActionUpload,
			EntityType: model.EntityDocument,
			EntityID:   doc.ID.String(),
			After: map[string]interface{}{
				"file_name":        doc.FileName,
				"mime_type":        doc.MimeType,
				"file_size":        doc.FileSize,
				"file_hash":        doc.FileHash,
				"duplicate_status": doc.DuplicateStatus,
				"pipeline_status":  doc.PipelineStatus,
			},
		}); err != nil {
			return err
		}
		s.publish(txCtx, doc)
		if in.AutoExtract {
			s.enqueue(txCtx, doc.ID)
		}
		return nil
	})
	if err != nil {
		if delErr := s.store.Delete(context.Background(), doc.StorageKey); delErr != nil {
			logger.Warn(ctx, "failed to remove orphaned upload", "key", doc.StorageKey, "error", delErr)
		}
		return nil, err
	}

	logger.Info(ctx, "document uploaded", "document_id", doc.ID, "company_id", company.ID, "mime_type", mimeType, "size", doc.FileSize)
	doc.Company = company
	return toDocumentResponse(doc), nil
}

func (s *documentService) List(ctx context.Context, req DocumentListRequest) ([]DocumentResponse, int64, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, 0, err
	}
	page, limit := normalizePage(req.Page, req.Limit)
	filter := repository.DocumentFilter{
		Scopes: []repository.Scope{
			tenancy.Scope(p, "processing_documents.tenant_id"),
			p.Access(rbac.ResourceDocuments, rbac.ActionRead).Scope("processing_documents.company_id"),
		},
		PipelineStatus:  strings.ToUpper(req.PipelineStatus),
		DuplicateStatus: strings.ToUpper(req.DuplicateStatus),
		Search:          strings.TrimSpace(req.Search),
		Page:            page,
		Limit:           limit,
	}
	if filter.PipelineStatus != "" && !workflow.Pipeline.Known(filter.PipelineStatus) {
		return nil, 0, apperr.Validation("unknown pipeline status %q", req.PipelineStatus)
	}
	if filter.DuplicateStatus != "" && !workflow.Duplicate.Known(filter.DuplicateStatus) {
		return nil, 0, apperr.Validation("unknown duplicate status %q", req.DuplicateStatus)
	}
	if filter.CompanyID, err = parseOptionalID(&req.CompanyID, "company_id"); err != nil {
		return nil, 0, err
	}
	if filter.TagID, err = parseOptionalID(&req.TagID, "tag_id"); err != nil {
		return nil, 0, err
	}
	if filter.ParentID, err = parseOptionalID(&req.ParentID, "parent_id"); err != nil {
		return nil, 0, err
	}

	docs, total, err := s.docs.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	res := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		res = append(res, *toDocumentResponse(&docs[i]))
	}
	return res, total, nil
}

// Get loads the document detail. The revision queries and the duplicate
// lookup run concurrently.
func (s *documentService) Get(ctx context.Context, id string) (*DocumentDetailResponse, error) {
	doc, err := loadDocument(ctx, s.docs, id, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, doc.ID)
}

func (s *documentService) OpenFile(ctx context.Context, id string) (*DocumentFile, error) {
	doc, err := loadDocument(ctx, s.docs, id, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	file := &DocumentFile{FileName: doc.FileName, MimeType: doc.MimeType, Size: doc.FileSize}

	url, err := s.store.PresignedURL(ctx, doc.StorageKey, doc.FileName)
	if err == nil {
		file.URL = url
		return file, nil
	}
	if !errors.Is(err, storage.ErrPresignUnsupported) {
		logger.Warn(ctx, "presign failed, streaming instead", "document_id", doc.ID, "error", err)
	}

	rc, err := s.store.Get(ctx, doc.StorageKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, apperr.NotFound("Document file")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeServiceUnavailable, err, "failed to read file")
	}
	file.Content = rc
	return file, nil
}

func (s *documentService) Delete(ctx context.Context, id string, lockVersion int) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := loadDocument(txCtx, s.docs, id, rbac.ActionDelete)
		if err != nil {
			return err
		}
		if doc.PipelineStatus == model.PipelineProcessing {
			return apperr.Conflict("document is being processed")
		}
		if err := s.docs.SoftDeleteWithLock(txCtx, doc.ID, lockVersion); err != nil {
			return err
		}
		doc.LockVersion = lockVersion + 1
		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &doc.TenantID,
			CompanyID:  &doc.CompanyID,
			Action:     model.ActionDelete,
			EntityType: model.EntityDocument,
			EntityID:   doc.ID.String(),
			Before:     toDocumentResponse(doc),
		}); err != nil {
			return err
		}
		s.publish(txCtx, doc)
		return nil
	})
}

// TriggerExtraction queues a document for extraction. A dead-lettered document
// is re-driven with a fresh attempt budget.
func (s *documentService) TriggerExtraction(ctx context.Context, id string, req LockRequest) (*DocumentResponse, error) {
	var doc *model.ProcessingDocument
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if doc, err = loadDocument(txCtx, s.docs, id, rbac.ActionUpdate); err != nil {
			return err
		}
		from := doc.PipelineStatus
		if err := workflow.Pipeline.Check(from, model.PipelineQueued); err != nil {
			return err
		}
		updates := map[string]interface{}{
			"pipeline_status": model.PipelineQueued,
			"last_error":      "",
		}
		if from == model.PipelineDeadLetter {
			updates["extraction_attempts"] = 0
			doc.ExtractionAttempts = 0
		}
		version, err := s.docs.UpdateWithLock(txCtx, doc.ID, *req.LockVersion, updates)
		if err != nil {
			return err
		}
		doc.LockVersion = version
		doc.PipelineStatus = model.PipelineQueued
		doc.LastError = ""

		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &doc.TenantID,
			CompanyID:  &doc.CompanyID,
			Action:     model.ActionExtractionQueued,
			EntityType: model.EntityDocument,
			EntityID:   doc.ID.String(),
			Before:     map[string]string{"pipeline_status": from},
			After:      map[string]string{"pipeline_status": model.PipelineQueued},
		}); err != nil {
			return err
		}
		s.publish(txCtx, doc)
		s.enqueue(txCtx, doc.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, doc.ID)
}

// Split creates one child document per page range. Children reference the
// parent's stored file and carry their page range.
func (s *documentService) Split(ctx context.Context, id string, req SplitDocumentRequest) (*DocumentDetailResponse, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	ranges, err := normalizeRanges(req.Ranges)
	if err != nil {
		return nil, err
	}

	var parentID uuid.UUID
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := loadDocument(txCtx, s.docs, id, rbac.ActionUpdate)
		if err != nil {
			return err
		}
		parentID = doc.ID
		if doc.ParentID != nil {
			return apperr.Validation("a split child cannot be split again")
		}
		if err := workflow.Pipeline.Check(doc.PipelineStatus, model.PipelineSplitPending); err != nil {
			return err
		}
		version, err := s.docs.UpdateWithLock(txCtx, doc.ID, *req.LockVersion, map[string]interface{}{
			"pipeline_status": model.PipelineSplitPending,
		})
		if err != nil {
			return err
		}

		childIDs := make([]string, 0, len(ranges))
		for _, r := range ranges {
			from, to := r.From, r.To
			child := &model.ProcessingDocument{
				TenantID:        doc.TenantID,
				CompanyID:       doc.CompanyID,
				ParentID:        &doc.ID,
				PageFrom:        &from,
				PageTo:          &to,
				FileName:        childFileName(doc.FileName, from, to),
				MimeType:        doc.MimeType,
				FileSize:        doc.FileSize,
				FileHash:        doc.FileHash,
				StorageKey:      doc.StorageKey,
				PipelineStatus:  model.PipelineUploaded,
				DuplicateStatus: model.DuplicateNone,
				UploadedBy:      p.UserIDPtr(),
			}
			if err := s.docs.Create(txCtx, child); err != nil {
				return fmt.Errorf("failed to create split document: %w", err)
			}
			childIDs = append(childIDs, child.ID.String())
			s.publish(txCtx, child)
		}

		if err := s.docs.UpdateStatus(txCtx, doc.ID, model.PipelineSplitPending, map[string]interface{}{
			"pipeline_status": model.PipelineSplitComplete,
		}); err != nil {
			return err
		}
		doc.PipelineStatus = model.PipelineSplitComplete
		doc.LockVersion = version + 1

		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &doc.TenantID,
			CompanyID:  &doc.CompanyID,
			Action:     model.ActionDocumentSplit,
			EntityType: model.EntityDocument,
			EntityID:   doc.ID.String(),
			After:      map[string]interface{}{"ranges": ranges, "children": childIDs},
		}); err != nil {
			return err
		}
		s.publish(txCtx, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, parentID)
}

func (s *documentService) DecideDuplicate(ctx context.Context, id string, req DuplicateDecisionRequest) (*DocumentResponse, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}

	var doc *model.ProcessingDocument
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if doc, err = loadDocument(txCtx, s.docs, id, rbac.ActionUpdate); err != nil {
			return err
		}
		from := doc.DuplicateStatus
		if err := workflow.Duplicate.Check(from, req.Decision); err != nil {
			return err
		}
		now := time.Now()
		updates := map[string]interface{}{
			"duplicate_status":     req.Decision,
			"duplicate_decided_by": p.UserIDPtr(),
			"duplicate_decided_at": now,
		}
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			updates["duplicate_reason"] = reason
		}
		version, err := s.docs.UpdateWithLock(txCtx, doc.ID, *req.LockVersion, updates)
		if err != nil {
			return err
		}
		doc.LockVersion = version
		doc.DuplicateStatus = req.Decision

		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &doc.TenantID,
			CompanyID:  &doc.CompanyID,
			Action:     model.ActionDuplicateDecision,
			EntityType: model.EntityDocument,
			EntityID:   doc.ID.String(),
			Before:     map[string]string{"duplicate_status": from},
			After:      map[string]string{"duplicate_status": req.Decision, "reason": req.Reason},
		}); err != nil {
			return err
		}
		s.publish(txCtx, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, doc.ID)
}

func (s *documentService) ReplaceTags(ctx context.Context, id string, req ReplaceTagsRequest) (*DocumentResponse, error) {
	tagIDs, err := parseIDs(req.TagIDs, "tag id")
	if err != nil {
		return nil, err
	}
	return s.changeTags(ctx, id, *req.LockVersion, func(txCtx context.Context, doc *model.ProcessingDocument, by *uuid.UUID) error {
		if _, err := resolveDocumentTags(txCtx, s.tags, doc, tagIDs); err != nil {
			return err
		}
		return s.tags.ReplaceDocumentTags(txCtx, doc.ID, tagIDs, by)
	})
}

func (s *documentService) AddTag(ctx context.Context, id, tagID string, req LockRequest) (*DocumentResponse, error) {
	tid, err := parseID(tagID, "tag id")
	if err != nil {
		return nil, err
	}
	return s.changeTags(ctx, id, *req.LockVersion, func(txCtx context.Context, doc *model.ProcessingDocument, by *uuid.UUID) error {
		if _, err := resolveDocumentTags(txCtx, s.tags, doc, []uuid.UUID{tid}); err != nil {
			return err
		}
		return s.tags.AddDocumentTag(txCtx, doc.ID, tid, by)
	})
}

func (s *documentService) RemoveTag(ctx context.Context, id, tagID string, lockVersion int) (*DocumentResponse, error) {
	tid, err := parseID(tagID, "tag id")
	if err != nil {
		return nil, err
	}
	return s.changeTags(ctx, id, lockVersion, func(txCtx context.Context, doc *model.ProcessingDocument, _ *uuid.UUID) error {
		n, err := s.tags.RemoveDocumentTag(txCtx, doc.ID, tid)
		if err != nil {
			return fmt.Errorf("failed to remove tag: %w", err)
		}
		if n == 0 {
			return apperr.NotFound("Tag")
		}
		return nil
	})
}

// --- Helpers ---

// changeTags runs a tag mutation under the document's lock and audits the
// before/after tag names
func (s *documentService) changeTags(ctx context.Context, id string, lockVersion int,
	mutate func(txCtx context.Context, doc *model.ProcessingDocument, by *uuid.UUID) error) (*DocumentResponse, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}

	var doc *model.ProcessingDocument
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if doc, err = loadDocument(txCtx, s.docs, id, rbac.ActionUpdate); err != nil {
			return err
		}
		before, err := s.tags.ListByDocument(txCtx, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to load tags: %w", err)
		}
		version, err := s.docs.UpdateWithLock(txCtx, doc.ID, lockVersion, nil)
		if err != nil {
			return err
		}
		doc.LockVersion = version

		if err := mutate(txCtx, doc, p.UserIDPtr()); err != nil {
			return err
		}
		after, err := s.tags.ListByDocument(txCtx, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to load tags: %w", err)
		}
		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &doc.TenantID,
			CompanyID:  &doc.CompanyID,
			Action:     model.ActionTagsChanged,
			EntityType: model.EntityDocument,
			EntityID:   doc.ID.String(),
			Before:     tagNames(before),
			After:      tagNames(after),
		}); err != nil {
			return err
		}
		s.publish(txCtx, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, doc.ID)
}

func (s *documentService) detail(ctx context.Context, id uuid.UUID) (*DocumentDetailResponse, error) {
	doc, err := s.docs.FindDetail(ctx, id)
	if err != nil {
		return nil, loadErr(err, "Document")
	}

	var (
		current   *model.DocumentRevision
		history   []model.DocumentRevision
		duplicate *model.ProcessingDocument
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rev, err := s.revisions.FindCurrent(gctx, doc.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		current = rev
		return err
	})
	g.Go(func() error {
		revs, err := s.revisions.ListByDocument(gctx, doc.ID)
		history = revs
		return err
	})
	if doc.DuplicateOfID != nil {
		g.Go(func() error {
			d, err := s.docs.FindByID(gctx, *doc.DuplicateOfID, func(db *gorm.DB) *gorm.DB {
				return db.Where("tenant_id = ?", doc.TenantID)
			})
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			duplicate = d
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load document detail: %w", err)
	}

	res := &DocumentDetailResponse{
		DocumentResponse: *toDocumentResponse(doc),
		Revisions:        make([]RevisionSummary, 0, len(history)),
		Children:         make([]DocumentResponse, 0, len(doc.Children)),
	}
	if current != nil {
		res.CurrentRevision = toRevisionResponse(current)
	}
	for i := range history {
		res.Revisions = append(res.Revisions, toRevisionSummary(&history[i]))
	}
	if duplicate != nil {
		res.DuplicateOf = toDocumentResponse(duplicate)
	}
	for i := range doc.Children {
		res.Children = append(res.Children, *toDocumentResponse(&doc.Children[i]))
	}
	return res, nil
}

func (s *documentService) reload(ctx context.Context, id uuid.UUID) (*DocumentResponse, error) {
	doc, err := s.docs.FindDetail(ctx, id)
	if err != nil {
		return nil, loadErr(err, "Document")
	}
	return toDocumentResponse(doc), nil
}

func (s *documentService) publish(ctx context.Context, doc *model.ProcessingDocument) {
	ev := documentEvent(doc)
	repository.AfterCommit(ctx, func() { s.notifier.PublishDocument(ev) })
}

func (s *documentService) enqueue(ctx context.Context, id uuid.UUID) {
	if s.queue == nil {
		return
	}
	repository.AfterCommit(ctx, func() { s.queue.Enqueue(id) })
}

// readUpload enforces the size limit and the magic-byte allow-list
func (s *documentService) readUpload(r io.Reader) ([]byte, string, error) {
	if r == nil {
		return nil, "", apperr.Validation("file is required")
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, "", apperr.Validation("file is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, "", apperr.Validation("file exceeds the %d byte limit", s.maxBytes).
			WithDetails(map[string]int64{"max_bytes": s.maxBytes})
	}
	mimeType, ok := sniffAllowed(data)
	if !ok {
		return nil, "", apperr.Validation("unsupported file type %s", mimeType).
			WithDetails(map[string]interface{}{"mime_type": mimeType, "allowed": allowedMimeTypes})
	}
	return data, mimeType, nil
}

// sniffAllowed detects the content type from magic bytes and reports whether it is allowed
func sniffAllowed(data []byte) (string, bool) {
	detected := mimetype.Detect(data)
	for _, allowed := range allowedMimeTypes {
		if detected.Is(allowed) {
			return allowed, true
		}
	}
	return detected.String(), false
}

func cleanFileName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "document"
	}
	if len(name) > maxFileNameLength {
		start := len(name) - maxFileNameLength
		for start < len(name) && !utf8.RuneStart(name[start]) {
			start++
		}
		name = name[start:]
	}
	return name
}

func childFileName(parent string, from, to int) string {
	ext := ""
	if i := strings.LastIndex(parent, "."); i > 0 {
		parent, ext = parent[:i], parent[i:]
	}
	if from == to {
		return fmt.Sprintf("%s (p%d)%s", parent, from, ext)
	}
	return fmt.Sprintf("%s (p%d-%d)%s", parent, from, to, ext)
}

// normalizeRanges sorts page ranges and rejects inverted or overlapping ones
func normalizeRanges(in []PageRange) ([]PageRange, error) {
	if len(in) == 0 {
		return nil, apperr.Validation("at least one page range is required")
	}
	ranges := append([]PageRange(nil), in...)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].From < ranges[j].From })
	for i, r := range ranges {
		if r.From < 1 || r.To < r.From {
			return nil, apperr.Validation("invalid page range %d-%d", r.From, r.To)
		}
		if i > 0 && r.From <= ranges[i-1].To {
			return nil, apperr.Validation("page ranges %d-%d and %d-%d overlap",
				ranges[i-1].From, ranges[i-1].To, r.From, r.To)
		}
	}
	return ranges, nil
}

func tagNames(tags []model.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

func toDocumentResponse(d *model.ProcessingDocument) *DocumentResponse {
	tags := make([]TagResponse, 0, len(d.Tags))
	for _, t := range d.Tags {
		tags = append(tags, toTagResponse(t))
	}
	res := &DocumentResponse{
		ID:                 d.ID.String(),
		TenantID:           d.TenantID.String(),
		CompanyID:          d.CompanyID.String(),
		ParentID:           idString(d.ParentID),
		PageFrom:           d.PageFrom,
		PageTo:             d.PageTo,
		FileName:           d.FileName,
		MimeType:           d.MimeType,
		FileSize:           d.FileSize,
		FileHash:           d.FileHash,
		PipelineStatus:     d.PipelineStatus,
		ExtractionAttempts: d.ExtractionAttempts,
		LastError:          d.LastError,
		DuplicateStatus:    d.DuplicateStatus,
		DuplicateOfID:      idString(d.DuplicateOfID),
		DuplicateReason:    d.DuplicateReason,
		DuplicateDecidedBy: idString(d.DuplicateDecidedBy),
		DuplicateDecidedAt: formatTimePtr(d.DuplicateDecidedAt),
		LockVersion:        d.LockVersion,
		UploadedBy:         idString(d.UploadedBy),
		Tags:               tags,
		CreatedAt:          formatTime(d.CreatedAt),
		UpdatedAt:          formatTime(d.UpdatedAt),
	}
	if d.Company != nil {
		res.CompanyName = d.Company.Name
	}
	return res
}
