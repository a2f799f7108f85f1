package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
)

func TestUploadRejectsUnsupportedContent(t *testing.T) {
	f := newFixture(t)
	svc := f.documentService()

	tests := []struct {
		name    string
		content io.Reader
	}{
		{"plain text with a pdf name", strings.NewReader("just some text, not a document")},
		{"empty file", bytes.NewReader(nil)},
		{"missing file", nil},
		{"too large", bytes.NewReader(append(append([]byte{}, pngBytes...), make([]byte, 2<<20)...))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(f.ctx, UploadDocumentInput{
				CompanyID: f.company.ID.String(),
				FileName:  "invoice.pdf",
				Content:   tt.content,
			})
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}

	var n int64
	f.db.Model(&model.ProcessingDocument{}).Count(&n)
	if n != 0 {
		t.Errorf("Expected no documents to be created, got %d", n)
	}
}

func TestUploadQueuesAndFlagsDuplicates(t *testing.T) {
	f := newFixture(t)
	svc := f.documentService()

	first := f.upload(t, svc, "a", true)
	if first.MimeType != "image/png" {
		t.Errorf("Expected sniffed mime image/png, got %s", first.MimeType)
	}
	if first.PipelineStatus != model.PipelineQueued {
		t.Errorf("Expected QUEUED, got %s", first.PipelineStatus)
	}
	if first.DuplicateStatus != model.DuplicateNone {
		t.Errorf("Expected no duplicate flag, got %s", first.DuplicateStatus)
	}
	if f.queue.count() != 1 {
		t.Errorf("Expected 1 enqueued document, got %d", f.queue.count())
	}
	if ev, ok := f.notifier.last(); !ok || ev.Type != EventDocumentUpdated || ev.DocumentID.String() != first.ID {
		t.Errorf("Expected document.updated event for %s, got %+v", first.ID, ev)
	}

	second := f.upload(t, svc, "a", false)
	if second.DuplicateStatus != model.DuplicateSuspected {
		t.Errorf("Expected SUSPECTED duplicate, got %s", second.DuplicateStatus)
	}
	if second.DuplicateOfID == nil || *second.DuplicateOfID != first.ID {
		t.Errorf("Expected duplicate_of_id %s, got %v", first.ID, second.DuplicateOfID)
	}
	if second.PipelineStatus != model.PipelineUploaded {
		t.Errorf("Expected UPLOADED without auto extract, got %s", second.PipelineStatus)
	}
	if f.queue.count() != 1 {
		t.Errorf("Expected no further enqueue, got %d", f.queue.count())
	}

	third := f.upload(t, svc, "b", false)
	if third.DuplicateStatus != model.DuplicateNone {
		t.Errorf("Expected different content to be NONE, got %s", third.DuplicateStatus)
	}
	if got := f.auditCount(t, model.ActionUpload); got != 3 {
		t.Errorf("Expected 3 UPLOAD audit rows, got %d", got)
	}
}

func TestUploadRequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	_, err := f.documentService().Upload(context.Background(), UploadDocumentInput{
		CompanyID: f.company.ID.String(),
		Content:   bytes.NewReader(pngBytes),
	})
	if !errors.Is(err, apperr.ErrAuthenticationRequired) {
		t.Errorf("Expected authentication error, got %v", err)
	}
}

func TestDocumentLockVersionConflicts(t *testing.T) {
	f := newFixture(t)
	svc := f.documentService()
	doc := f.upload(t, svc, "lock", false)

	tag := model.Tag{TenantID: f.tenantID, Name: "Urgent"}
	if err := f.db.Create(&tag).Error; err != nil {
		t.Fatalf("Failed to seed tag: %v", err)
	}

	updated, err := svc.AddTag(f.ctx, doc.ID, tag.ID.String(), LockRequest{LockVersion: intPtr(doc.LockVersion)})
	if err != nil {
		t.Fatalf("Expected tag to be added, got %v", err)
	}
	if updated.LockVersion != doc.LockVersion+1 {
		t.Errorf("Expected lock version %d, got %d", doc.LockVersion+1, updated.LockVersion)
	}
	if len(updated.Tags) != 1 || updated.Tags[0].Name != "Urgent" {
		t.Errorf("Expected Urgent tag, got %+v", updated.Tags)
	}

	// the original version is now stale
	if _, err := svc.AddTag(f.ctx, doc.ID, tag.ID.String(), LockRequest{LockVersion: intPtr(doc.LockVersion)}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected conflict on stale tag change, got %v", err)
	}
	if err := svc.Delete(f.ctx, doc.ID, doc.LockVersion); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected conflict on stale delete, got %v", err)
	}

	removed, err := svc.RemoveTag(f.ctx, doc.ID, tag.ID.String(), updated.LockVersion)
	if err != nil {
		t.Fatalf("Expected tag removal, got %v", err)
	}
	if len(removed.Tags) != 0 {
		t.Errorf("Expected no tags, got %+v", removed.Tags)
	}
	if got := f.auditCount(t, model.ActionTagsChanged); got != 2 {
		t.Errorf("Expected 2 TAGS_CHANGED audit rows, got %d", got)
	}

	if err := svc.Delete(f.ctx, doc.ID, removed.LockVersion); err != nil {
		t.Fatalf("Expected delete with current version, got %v", err)
	}
	if _, err := svc.Get(f.ctx, doc.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected deleted document to be not found, got %v", err)
	}
}

func TestSplitCreatesChildren(t *testing.T) {
	f := newFixture(t)
	svc := f.documentService()
	doc := f.upload(t, svc, "bundle", false)

	detail, err := svc.Split(f.ctx, doc.ID, SplitDocumentRequest{
		LockVersion: intPtr(doc.LockVersion),
		Ranges:      []PageRange{{From: 3, To: 4}, {From: 1, To: 2}},
	})
	if err != nil {
		t.Fatalf("Expected split to succeed, got %v", err)
	}
	if detail.PipelineStatus != model.PipelineSplitComplete {
		t.Errorf("Expected SPLIT_COMPLETE, got %s", detail.PipelineStatus)
	}
	if len(detail.Children) != 2 {
		t.Fatalf("Expected 2 children, got %d", len(detail.Children))
	}
	for _, child := range detail.Children {
		if child.ParentID == nil || *child.ParentID != doc.ID {
			t.Errorf("Expected child parent %s, got %v", doc.ID, child.ParentID)
		}
		if child.PageFrom == nil || child.PageTo == nil || *child.PageFrom > *child.PageTo {
			t.Errorf("Expected a page range on child, got %v-%v", child.PageFrom, child.PageTo)
		}
	}

	if _, err := svc.Split(f.ctx, detail.Children[0].ID, SplitDocumentRequest{
		LockVersion: intPtr(detail.Children[0].LockVersion),
		Ranges:      []PageRange{{From: 1, To: 1}},
	}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected a child split to be rejected, got %v", err)
	}
}

func TestSplitRejectsOverlappingRanges(t *testing.T) {
	f := newFixture(t)
	svc := f.documentService()
	doc := f.upload(t, svc, "overlap", false)

	tests := []struct {
		name   string
		ranges []PageRange
	}{
		{"overlap", []PageRange{{From: 1, To: 3}, {From: 3, To: 4}}},
		{"inverted", []PageRange{{From: 5, To: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Split(f.ctx, doc.ID, SplitDocumentRequest{LockVersion: intPtr(doc.LockVersion), Ranges: tt.ranges})
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestDuplicateDecision(t *testing.T) {
	f := newFixture(t)
	svc := f.documentService()
	f.upload(t, svc, "dup", false)
	dup := f.upload(t, svc, "dup", false)

	decided, err := svc.DecideDuplicate(f.ctx, dup.ID, DuplicateDecisionRequest{
		LockVersion: intPtr(dup.LockVersion),
		Decision:    model.DuplicateRejected,
		Reason:      "different invoice, same scan template",
	})
	if err != nil {
		t.Fatalf("Expected decision to be recorded, got %v", err)
	}
	if decided.DuplicateStatus != model.DuplicateRejected {
		t.Errorf("Expected REJECTED, got %s", decided.DuplicateStatus)
	}
	if decided.DuplicateDecidedBy == nil || *decided.DuplicateDecidedBy != f.admin.ID.String() {
		t.Errorf("Expected decided_by %s, got %v", f.admin.ID, decided.DuplicateDecidedBy)
	}

	_, err = svc.DecideDuplicate(f.ctx, dup.ID, DuplicateDecisionRequest{
		LockVersion: intPtr(decided.LockVersion),
		Decision:    model.DuplicateConfirmed,
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected a decided duplicate to be final, got %v", err)
	}
}

func TestOpenFileStreamsLocalContent(t *testing.T) {
	f := newFixture(t)
	svc := f.documentService()
	doc := f.upload(t, svc, "stream", false)

	file, err := svc.OpenFile(f.ctx, doc.ID)
	if err != nil {
		t.Fatalf("Expected file, got %v", err)
	}
	if file.URL != "" {
		t.Fatalf("Expected local store to stream, got URL %s", file.URL)
	}
	defer file.Content.Close()
	data, err := io.ReadAll(file.Content)
	if err != nil {
		t.Fatalf("Expected readable content, got %v", err)
	}
	if !bytes.HasPrefix(data, pngBytes) {
		t.Error("Expected stored bytes to match the upload")
	}
}

func TestCleanFileName(t *testing.T) {
	// the last maxFileNameLength bytes start inside 日
	long := "x日" + strings.Repeat("a", maxFileNameLength-6) + ".pdf"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "invoice.pdf", "invoice.pdf"},
		{"strips directories", `C:\scans\2024/invoice.pdf`, "invoice.pdf"},
		{"empty", "  ", "document"},
		{"long name keeps whole runes", long, strings.Repeat("a", maxFileNameLength-6) + ".pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cleanFileName(tt.in)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if !utf8.ValidString(got) || len(got) > maxFileNameLength {
				t.Errorf("Expected valid UTF-8 within %d bytes, got %d bytes", maxFileNameLength, len(got))
			}
		})
	}
}
