package service

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"backoffice/internal/extractor"
	"backoffice/internal/model"

	"github.com/google/uuid"
)

func invoiceResult(number string) *extractor.Result {
	return &extractor.Result{
		VendorName:     "Initech",
		DocumentNumber: number,
		DocumentDate:   "2024-05-10",
		Currency:       "SGD",
		LineItems: []extractor.Line{
			{Description: "Printer toner", Quantity: dec("3"), UnitPrice: dec("40"), Amount: dec("120"), GSTAmount: dec("10.80")},
		},
	}
}

func (f *fixture) document(t *testing.T, id string) model.ProcessingDocument {
	t.Helper()
	var doc model.ProcessingDocument
	if err := f.db.First(&doc, "id = ?", uuid.MustParse(id)).Error; err != nil {
		t.Fatalf("Failed to load document: %v", err)
	}
	return doc
}

func TestProcessCreatesExtractionRevision(t *testing.T) {
	f := newFixture(t)
	docs := f.documentService()
	doc := f.upload(t, docs, "extract", true)

	svc := f.extractionService(fakeExtractor{result: invoiceResult("INV-77")}, 3)
	if err := svc.Process(f.ctx, uuid.MustParse(doc.ID)); err != nil {
		t.Fatalf("Expected processing to succeed, got %v", err)
	}

	got := f.document(t, doc.ID)
	if got.PipelineStatus != model.PipelineExtractionDone {
		t.Errorf("Expected EXTRACTION_DONE, got %s", got.PipelineStatus)
	}
	if got.ExtractionAttempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", got.ExtractionAttempts)
	}

	detail, err := docs.Get(f.ctx, doc.ID)
	if err != nil {
		t.Fatalf("Expected detail, got %v", err)
	}
	rev := detail.CurrentRevision
	if rev == nil {
		t.Fatal("Expected a current revision")
	}
	if rev.Source != model.RevisionSourceExtraction || rev.Status != model.RevisionDraft {
		t.Errorf("Expected extraction DRAFT, got %s %s", rev.Source, rev.Status)
	}
	if rev.TotalAmount != "130.80" || rev.DocumentNumber != "INV-77" {
		t.Errorf("Expected INV-77 totalling 130.80, got %s %s", rev.DocumentNumber, rev.TotalAmount)
	}
	if f.auditCount(t, model.ActionExtractionCompleted) != 1 {
		t.Error("Expected an EXTRACTION_COMPLETED audit row")
	}

	// already processed documents are skipped
	if err := svc.Process(f.ctx, uuid.MustParse(doc.ID)); err != nil {
		t.Errorf("Expected skip without error, got %v", err)
	}
	if again := f.document(t, doc.ID); again.ExtractionAttempts != 1 {
		t.Errorf("Expected attempts to stay 1, got %d", again.ExtractionAttempts)
	}
}

func TestProcessFlagsVendorNumberDuplicate(t *testing.T) {
	f := newFixture(t)
	docs := f.documentService()
	svc := f.extractionService(fakeExtractor{result: invoiceResult("INV-9")}, 3)

	first := f.upload(t, docs, "one", true)
	second := f.upload(t, docs, "two", true)
	for _, id := range []string{first.ID, second.ID} {
		if err := svc.Process(f.ctx, uuid.MustParse(id)); err != nil {
			t.Fatalf("Expected processing to succeed, got %v", err)
		}
	}

	got := f.document(t, second.ID)
	if got.DuplicateStatus != model.DuplicateSuspected {
		t.Errorf("Expected SUSPECTED, got %s", got.DuplicateStatus)
	}
	if got.DuplicateOfID == nil || got.DuplicateOfID.String() != first.ID {
		t.Errorf("Expected duplicate of %s, got %v", first.ID, got.DuplicateOfID)
	}
}

func TestProcessFailureClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		maxAttempts int
		want        string
		retry       bool
	}{
		{"retryable", &extractor.Error{Status: 503, Retryable: true, Err: errors.New("busy")}, 3, model.PipelineFailedRetryable, true},
		{"permanent", &extractor.Error{Status: 422, Retryable: false, Err: errors.New("unreadable")}, 3, model.PipelineFailedPermanent, false},
		{"not configured", extractor.ErrNotConfigured, 3, model.PipelineFailedPermanent, false},
		{"attempts exhausted", &extractor.Error{Status: 500, Retryable: true, Err: errors.New("boom")}, 1, model.PipelineDeadLetter, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			doc := f.upload(t, f.documentService(), tt.name, true)

			svc := f.extractionService(fakeExtractor{err: tt.err}, tt.maxAttempts)
			svc.backoff = func(int) time.Duration { return time.Hour }
			t.Cleanup(func() { _ = svc.Wait() })

			if err := svc.Process(f.ctx, uuid.MustParse(doc.ID)); err != nil {
				t.Fatalf("Expected failure to be recorded, got %v", err)
			}
			got := f.document(t, doc.ID)
			if got.PipelineStatus != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got.PipelineStatus)
			}
			if got.LastError == "" {
				t.Error("Expected last_error to be set")
			}
			if scheduled := svc.retryScheduled(got.ID); scheduled != tt.retry {
				t.Errorf("Expected retry scheduled %v, got %v", tt.retry, scheduled)
			}
			if ev, ok := f.notifier.last(); !ok || ev.PipelineStatus != tt.want {
				t.Errorf("Expected last event with %s, got %+v", tt.want, ev)
			}
		})
	}
}

func TestRetryRequeuesFailedDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, f.documentService(), "retry", false)
	if err := f.db.Model(&model.ProcessingDocument{}).Where("id = ?", uuid.MustParse(doc.ID)).
		Update("pipeline_status", model.PipelineFailedRetryable).Error; err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}

	svc := f.extractionService(fakeExtractor{}, 3)
	svc.retry(f.ctx, uuid.MustParse(doc.ID))

	if got := f.document(t, doc.ID); got.PipelineStatus != model.PipelineQueued {
		t.Errorf("Expected QUEUED after retry, got %s", got.PipelineStatus)
	}
	select {
	case id := <-svc.jobs:
		if id.String() != doc.ID {
			t.Errorf("Expected %s to be enqueued, got %s", doc.ID, id)
		}
	default:
		t.Error("Expected the document on the job queue")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, retryBaseDelay},
		{1, retryBaseDelay},
		{2, 2 * retryBaseDelay},
		{3, 4 * retryBaseDelay},
		{50, retryMaxDelay},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.attempt); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRecoverInterruptedDocuments(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, f.documentService(), "crash", false)
	if err := f.db.Model(&model.ProcessingDocument{}).Where("id = ?", uuid.MustParse(doc.ID)).
		Update("pipeline_status", model.PipelineProcessing).Error; err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}

	svc := f.extractionService(fakeExtractor{}, 3)
	svc.backoff = func(int) time.Duration { return time.Hour }
	t.Cleanup(func() { _ = svc.Wait() })
	if err := svc.recoverInterrupted(f.ctx); err != nil {
		t.Fatalf("Expected recovery, got %v", err)
	}
	if got := f.document(t, doc.ID); got.PipelineStatus != model.PipelineFailedRetryable {
		t.Errorf("Expected FAILED_RETRYABLE, got %s", got.PipelineStatus)
	}
}

func TestProcessUnbuildableResultFailsPermanently(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, f.documentService(), "bad-date", true)

	result := invoiceResult("INV-10")
	result.DocumentDate = "10/05/2024"
	svc := f.extractionService(fakeExtractor{result: result}, 3)
	svc.backoff = func(int) time.Duration { return time.Hour }
	t.Cleanup(func() { _ = svc.Wait() })

	if err := svc.Process(f.ctx, uuid.MustParse(doc.ID)); err != nil {
		t.Fatalf("Expected failure to be recorded, got %v", err)
	}
	got := f.document(t, doc.ID)
	if got.PipelineStatus != model.PipelineFailedPermanent {
		t.Errorf("Expected FAILED_PERMANENT, got %s", got.PipelineStatus)
	}
	if !strings.Contains(got.LastError, "document_date") {
		t.Errorf("Expected last_error to name document_date, got %q", got.LastError)
	}
	if got.LockVersion != doc.LockVersion+2 {
		t.Errorf("Expected lock version %d after claim and failure, got %d", doc.LockVersion+2, got.LockVersion)
	}
	if svc.retryScheduled(got.ID) {
		t.Error("Expected no retry for an unbuildable result")
	}
	var revisions int64
	f.db.Model(&model.DocumentRevision{}).Where("document_id = ?", got.ID).Count(&revisions)
	if revisions != 0 {
		t.Errorf("Expected the revision insert to roll back, got %d rows", revisions)
	}
	if ev, ok := f.notifier.last(); !ok || ev.PipelineStatus != model.PipelineFailedPermanent || ev.LockVersion != got.LockVersion {
		t.Errorf("Expected FAILED_PERMANENT event at version %d, got %+v", got.LockVersion, ev)
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "timeout", 20, "timeout"},
		{"ascii cut", "connection reset", 10, "connection"},
		{"inside multi-byte rune", "abc日本", 5, "abc"},
		{"on rune boundary", "abc日本", 6, "abc日"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want || !utf8.ValidString(got) {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
