package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"backoffice/internal/apperr"
	"backoffice/internal/extractor"
	"backoffice/internal/model"
	"backoffice/internal/reconcile"
	"backoffice/internal/repository"
	"backoffice/internal/storage"
	"backoffice/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	extractionQueueSize  = 256
	extractionSweepEvery = 30 * time.Second
	extractionSweepBatch = 100
	retryBaseDelay       = 5 * time.Second
	retryMaxDelay        = 5 * time.Minute
	maxErrorLength       = 2000
)

// ExtractionOptions tunes the worker pool
type ExtractionOptions struct {
	Workers     int
	MaxAttempts int
	Timeout     time.Duration
}

// --- Interface ---

type ExtractionService interface {
	ExtractionQueue
	Start(ctx context.Context) error
	Wait() error
	Process(ctx context.Context, documentID uuid.UUID) error
}

type extractionService struct {
	docs      repository.DocumentRepository
	revisions repository.RevisionRepository
	companies repository.CompanyRepository
	builder   revisionBuilder
	extractor extractor.Extractor
	store     storage.ObjectStore
	audit     AuditService
	tx        repository.TransactionManager
	notifier  Notifier
	opts      ExtractionOptions

	jobs    chan uuid.UUID
	group   *errgroup.Group
	retryMu sync.Mutex
	retries map[uuid.UUID]*time.Timer
	backoff func(attempt int) time.Duration
}

func NewExtractionService(
	docs repository.DocumentRepository,
	revisions repository.RevisionRepository,
	companies repository.CompanyRepository,
	contacts repository.ContactRepository,
	taxCodes repository.TaxCodeRepository,
	ex extractor.Extractor,
	store storage.ObjectStore,
	audit AuditService,
	tx repository.TransactionManager,
	notifier Notifier,
	opts ExtractionOptions,
) ExtractionService {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	return &extractionService{
		docs:      docs,
		revisions: revisions,
		companies: companies,
		builder:   revisionBuilder{contacts: contacts, taxCodes: taxCodes},
		extractor: ex,
		store:     store,
		audit:     audit,
		tx:        tx,
		notifier:  orNoop(notifier),
		opts:      opts,
		jobs:      make(chan uuid.UUID, extractionQueueSize),
		retries:   make(map[uuid.UUID]*time.Timer),
		backoff:   retryDelay,
	}
}

// --- Implementation ---

// Start launches the workers and the sweeper. Documents left PROCESSING by a
// previous run are failed as retryable first.
func (s *extractionService) Start(ctx context.Context) error {
	if err := s.recoverInterrupted(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.opts.Workers; i++ {
		worker := i + 1
		g.Go(func() error {
			s.work(gctx, worker)
			return nil
		})
	}
	g.Go(func() error {
		s.sweep(gctx)
		return nil
	})
	s.group = g
	logger.Info(ctx, "extraction workers started", "workers", s.opts.Workers, "max_attempts", s.opts.MaxAttempts)
	return nil
}

// Wait blocks until every worker has returned and cancels pending retries
func (s *extractionService) Wait() error {
	var err error
	if s.group != nil {
		err = s.group.Wait()
	}
	s.retryMu.Lock()
	for id, t := range s.retries {
		t.Stop()
		delete(s.retries, id)
	}
	s.retryMu.Unlock()
	return err
}

// Enqueue never blocks. When the queue is full the sweeper picks the document up later.
func (s *extractionService) Enqueue(documentID uuid.UUID) {
	select {
	case s.jobs <- documentID:
	default:
		logger.Warn(context.Background(), "extraction queue full, deferring to sweeper", "document_id", documentID)
	}
}

// Process runs one extraction attempt. A document that is no longer QUEUED
// was claimed elsewhere and is skipped.
func (s *extractionService) Process(ctx context.Context, documentID uuid.UUID) error {
	doc, err := s.docs.FindByID(ctx, documentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	if doc.PipelineStatus != model.PipelineQueued {
		return nil
	}

	err = s.docs.UpdateStatus(ctx, doc.ID, model.PipelineQueued, map[string]interface{}{
		"pipeline_status":     model.PipelineProcessing,
		"extraction_attempts": gorm.Expr("extraction_attempts + 1"),
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil
		}
		return fmt.Errorf("failed to claim document: %w", err)
	}
	doc.PipelineStatus = model.PipelineProcessing
	doc.ExtractionAttempts++
	doc.LockVersion++
	s.notifier.PublishDocument(documentEvent(doc))

	ctx = logger.WithDocument(ctx, doc.ID)
	result, err := s.extract(ctx, doc)
	if err != nil {
		return s.fail(ctx, doc, err)
	}

	// complete mutates doc before its transaction may roll back
	claimed := *doc
	if err := s.complete(ctx, doc, result); err != nil {
		*doc = claimed
		if errors.Is(err, apperr.ErrValidation) {
			// an unbuildable result is permanent
			err = &extractor.Error{Retryable: false, Err: err}
		}
		return s.fail(ctx, doc, err)
	}
	return nil
}

// --- Helpers ---

func (s *extractionService) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.jobs:
			if err := s.Process(ctx, id); err != nil {
				logger.Error(ctx, "extraction job failed", "worker", worker, "document_id", id, "error", err)
			}
		}
	}
}

// sweep periodically re-enqueues QUEUED documents and retries that are due
func (s *extractionService) sweep(ctx context.Context) {
	ticker := time.NewTicker(extractionSweepEvery)
	defer ticker.Stop()
	for {
		s.requeuePending(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *extractionService) requeuePending(ctx context.Context) {
	docs, err := s.docs.ListByPipelineStatus(ctx,
		[]string{model.PipelineQueued, model.PipelineFailedRetryable}, extractionSweepBatch)
	if err != nil {
		logger.Error(ctx, "failed to list pending extractions", "error", err)
		return
	}
	now := time.Now()
	for _, d := range docs {
		switch d.PipelineStatus {
		case model.PipelineQueued:
			s.Enqueue(d.ID)
		case model.PipelineFailedRetryable:
			if s.retryScheduled(d.ID) {
				continue
			}
			if due := d.UpdatedAt.Add(s.backoff(d.ExtractionAttempts)); now.After(due) {
				s.retry(ctx, d.ID)
			} else {
				s.scheduleRetry(d.ID, due.Sub(now))
			}
		}
	}
}

func (s *extractionService) recoverInterrupted(ctx context.Context) error {
	docs, err := s.docs.ListByPipelineStatus(ctx, []string{model.PipelineProcessing}, 0)
	if err != nil {
		return fmt.Errorf("failed to list interrupted extractions: %w", err)
	}
	for i := range docs {
		doc := &docs[i]
		logger.Warn(ctx, "recovering interrupted extraction", "document_id", doc.ID)
		if err := s.fail(ctx, doc, errors.New("extraction interrupted by shutdown")); err != nil {
			return err
		}
	}
	return nil
}

func (s *extractionService) extract(ctx context.Context, doc *model.ProcessingDocument) (*extractor.Result, error) {
	company, err := s.companies.FindByID(ctx, doc.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load company: %w", err)
	}
	rc, err := s.store.Get(ctx, doc.StorageKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, &extractor.Error{Retryable: false, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stored file: %w", err)
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read stored file: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	started := time.Now()
	result, err := s.extractor.Extract(callCtx, extractor.Input{
		DocumentID:   doc.ID.String(),
		FileName:     doc.FileName,
		MimeType:     doc.MimeType,
		Content:      content,
		PageFrom:     doc.PageFrom,
		PageTo:       doc.PageTo,
		HomeCurrency: company.HomeCurrency,
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "extraction returned", "lines", len(result.LineItems), "duration_ms", time.Since(started).Milliseconds())
	return result, nil
}

// complete stores the result as a new DRAFT revision, checks vendor and number
// against the company's other documents and marks the document done
func (s *extractionService) complete(ctx context.Context, doc *model.ProcessingDocument, result *extractor.Result) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		company, err := s.companies.FindByID(txCtx, doc.CompanyID)
		if err != nil {
			return loadErr(err, "Company")
		}

		current, err := s.revisions.FindCurrent(txCtx, doc.ID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return fmt.Errorf("failed to load current revision: %w", err)
		default:
			if err := s.revisions.Transition(txCtx, current.ID, current.Status, model.RevisionSuperseded,
				map[string]interface{}{"superseded_at": time.Now()}); err != nil {
				return err
			}
		}

		number, err := s.revisions.NextNumber(txCtx, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to number revision: %w", err)
		}
		rev := &model.DocumentRevision{
			TenantID:       doc.TenantID,
			DocumentID:     doc.ID,
			RevisionNumber: number,
			Status:         model.RevisionDraft,
			Source:         model.RevisionSourceExtraction,
			Currency:       company.HomeCurrency,
			HomeCurrency:   company.HomeCurrency,
			ExchangeRate:   decimal.NewFromInt(1),
		}
		if err := s.builder.apply(txCtx, doc, rev, revisionInputFromResult(result)); err != nil {
			return fmt.Errorf("failed to build revision: %w", err)
		}
		if err := s.revisions.Create(txCtx, rev); err != nil {
			return fmt.Errorf("failed to create revision: %w", err)
		}

		updates := map[string]interface{}{
			"pipeline_status": model.PipelineExtractionDone,
			"last_error":      "",
		}
		if doc.DuplicateStatus == model.DuplicateNone && rev.VendorName != "" && rev.DocumentNumber != "" {
			original, err := s.docs.FindByVendorAndNumber(txCtx, doc.CompanyID, rev.VendorName, rev.DocumentNumber, doc.ID)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
			case err != nil:
				return fmt.Errorf("failed to check for duplicates: %w", err)
			default:
				updates["duplicate_status"] = model.DuplicateSuspected
				updates["duplicate_of_id"] = original.ID
				updates["duplicate_reason"] = fmt.Sprintf("same vendor and document number %s as %s", rev.DocumentNumber, original.FileName)
				doc.DuplicateStatus = model.DuplicateSuspected
				doc.DuplicateOfID = &original.ID
			}
		}
		if err := s.docs.UpdateStatus(txCtx, doc.ID, model.PipelineProcessing, updates); err != nil {
			return err
		}
		doc.PipelineStatus = model.PipelineExtractionDone
		doc.LockVersion++

		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &doc.TenantID,
			CompanyID:  &doc.CompanyID,
			Action:     model.ActionExtractionCompleted,
			EntityType: model.EntityDocument,
			EntityID:   doc.ID.String(),
			After: map[string]interface{}{
				"revision_id":       rev.ID,
				"revision_number":   rev.RevisionNumber,
				"attempt":           doc.ExtractionAttempts,
				"duplicate_status":  doc.DuplicateStatus,
				"validation_issues": len(rev.ValidationIssues),
			},
		}); err != nil {
			return err
		}
		ev := documentEvent(doc)
		repository.AfterCommit(txCtx, func() { s.notifier.PublishDocument(ev) })
		logger.Info(txCtx, "extraction completed", "revision_number", rev.RevisionNumber, "attempt", doc.ExtractionAttempts)
		return nil
	})
}

// fail records a failed attempt. Non-retryable errors end in FAILED_PERMANENT,
// an exhausted attempt budget in DEAD_LETTER; anything else is retried with backoff.
func (s *extractionService) fail(ctx context.Context, doc *model.ProcessingDocument, cause error) error {
	status := model.PipelineFailedRetryable
	switch {
	case !extractor.IsRetryable(cause):
		status = model.PipelineFailedPermanent
	case doc.ExtractionAttempts >= s.opts.MaxAttempts:
		status = model.PipelineDeadLetter
	}
	message := truncate(cause.Error(), maxErrorLength)

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.docs.UpdateStatus(txCtx, doc.ID, model.PipelineProcessing, map[string]interface{}{
			"pipeline_status": status,
			"last_error":      message,
		}); err != nil {
			return err
		}
		doc.PipelineStatus = status
		doc.LastError = message
		doc.LockVersion++

		if err := s.audit.Record(txCtx, AuditEntry{
			TenantID:   &doc.TenantID,
			CompanyID:  &doc.CompanyID,
			Action:     model.ActionExtractionFailed,
			EntityType: model.EntityDocument,
			EntityID:   doc.ID.String(),
			After: map[string]interface{}{
				"pipeline_status": status,
				"attempt":         doc.ExtractionAttempts,
				"error":           message,
			},
		}); err != nil {
			return err
		}
		ev := documentEvent(doc)
		repository.AfterCommit(txCtx, func() { s.notifier.PublishDocument(ev) })
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record extraction failure: %w", err)
	}

	logger.Warn(ctx, "extraction failed", "status", status, "attempt", doc.ExtractionAttempts, "error", message)
	if status == model.PipelineFailedRetryable {
		s.scheduleRetry(doc.ID, s.backoff(doc.ExtractionAttempts))
	}
	return nil
}

func (s *extractionService) scheduleRetry(id uuid.UUID, delay time.Duration) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	if _, ok := s.retries[id]; ok {
		return
	}
	s.retries[id] = time.AfterFunc(delay, func() {
		s.retryMu.Lock()
		delete(s.retries, id)
		s.retryMu.Unlock()
		s.retry(context.Background(), id)
	})
}

func (s *extractionService) retryScheduled(id uuid.UUID) bool {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	_, ok := s.retries[id]
	return ok
}

// retry moves a FAILED_RETRYABLE document back to QUEUED and enqueues it
func (s *extractionService) retry(ctx context.Context, id uuid.UUID) {
	err := s.docs.UpdateStatus(ctx, id, model.PipelineFailedRetryable, map[string]interface{}{
		"pipeline_status": model.PipelineQueued,
	})
	if err != nil {
		logger.Debug(ctx, "retry skipped", "document_id", id, "error", err)
		return
	}
	s.Enqueue(id)
}

// retryDelay doubles from retryBaseDelay per attempt up to retryMaxDelay
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}

func revisionInputFromResult(r *extractor.Result) RevisionInput {
	in := RevisionInput{
		VendorName:     &r.VendorName,
		DocumentNumber: &r.DocumentNumber,
	}
	if r.DocumentDate != "" {
		in.DocumentDate = &r.DocumentDate
	}
	if r.DueDate != "" {
		in.DueDate = &r.DueDate
	}
	if c := reconcile.NormalizeCurrency(r.Currency); reconcile.ValidCurrency(c) {
		in.Currency = &c
		if r.ExchangeRate.IsPositive() {
			rate := r.ExchangeRate
			in.ExchangeRate = &rate
		}
	}
	if !r.Subtotal.IsZero() {
		in.Subtotal = &r.Subtotal
	}
	if !r.TaxAmount.IsZero() {
		in.TaxAmount = &r.TaxAmount
	}
	if !r.TotalAmount.IsZero() {
		in.TotalAmount = &r.TotalAmount
	}

	lines := make([]LineItemInput, 0, len(r.LineItems))
	for _, l := range r.LineItems {
		line := LineItemInput{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Amount:      l.Amount,
			TaxCode:     l.TaxCode,
		}
		if !l.GSTAmount.IsZero() {
			gst := l.GSTAmount
			line.GSTAmount = &gst
		}
		lines = append(lines, line)
	}
	in.LineItems = &lines
	return in
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
