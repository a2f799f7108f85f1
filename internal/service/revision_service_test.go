package service

import (
	"errors"
	"testing"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/model"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestRevisionLifecycle(t *testing.T) {
	f := newFixture(t)
	docs := f.documentService()
	revs := f.revisionService()
	doc := f.upload(t, docs, "rev", false)

	created, err := revs.CreateRevision(f.ctx, doc.ID, CreateRevisionRequest{
		LockVersion: intPtr(doc.LockVersion),
		RevisionInput: RevisionInput{
			VendorName:     strPtr("Globex Supplies"),
			DocumentNumber: strPtr("INV-1001"),
			DocumentDate:   strPtr("2024-03-01"),
		},
	})
	if err != nil {
		t.Fatalf("Expected draft to be created, got %v", err)
	}
	if created.Revision.Status != model.RevisionDraft || created.Revision.RevisionNumber != 1 {
		t.Errorf("Expected DRAFT #1, got %s #%d", created.Revision.Status, created.Revision.RevisionNumber)
	}
	if created.Revision.Currency != "SGD" || created.Revision.ExchangeRate != "1" {
		t.Errorf("Expected home currency at rate 1, got %s at %s", created.Revision.Currency, created.Revision.ExchangeRate)
	}
	if created.LockVersion != doc.LockVersion+1 {
		t.Errorf("Expected lock version %d, got %d", doc.LockVersion+1, created.LockVersion)
	}

	if _, err := revs.CreateRevision(f.ctx, doc.ID, CreateRevisionRequest{LockVersion: intPtr(created.LockVersion)}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected conflict for a second draft, got %v", err)
	}

	lines := []LineItemInput{
		{Description: "Consulting", Quantity: dec("2"), UnitPrice: dec("100"), GSTAmount: decPtr("18")},
		{Description: "Travel", Quantity: dec("1"), UnitPrice: dec("50.555")},
	}
	updated, err := revs.UpdateRevision(f.ctx, doc.ID, created.Revision.ID, UpdateRevisionRequest{
		LockVersion:   intPtr(created.LockVersion),
		RevisionInput: RevisionInput{LineItems: &lines},
	})
	if err != nil {
		t.Fatalf("Expected draft update, got %v", err)
	}
	r := updated.Revision
	if r.Subtotal != "250.56" || r.TaxAmount != "18.00" || r.TotalAmount != "268.56" {
		t.Errorf("Expected totals 250.56 + 18.00 = 268.56, got %s + %s = %s", r.Subtotal, r.TaxAmount, r.TotalAmount)
	}
	if r.HomeTotal != r.TotalAmount {
		t.Errorf("Expected home total to equal total at rate 1, got %s", r.HomeTotal)
	}

	if _, err := revs.UpdateRevision(f.ctx, doc.ID, created.Revision.ID, UpdateRevisionRequest{
		LockVersion:   intPtr(created.LockVersion),
		RevisionInput: RevisionInput{Notes: strPtr("stale")},
	}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected conflict for stale lock version, got %v", err)
	}

	approved, err := revs.ApproveRevision(f.ctx, doc.ID, created.Revision.ID, LockRequest{LockVersion: intPtr(updated.LockVersion)})
	if err != nil {
		t.Fatalf("Expected approval, got %v", err)
	}
	if approved.Revision.Status != model.RevisionApproved || approved.Revision.ApprovedBy == nil {
		t.Errorf("Expected APPROVED with approver, got %s", approved.Revision.Status)
	}

	if _, err := revs.UpdateRevision(f.ctx, doc.ID, created.Revision.ID, UpdateRevisionRequest{
		LockVersion:   intPtr(approved.LockVersion),
		RevisionInput: RevisionInput{Notes: strPtr("too late")},
	}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected approved revision to be immutable, got %v", err)
	}

	next, err := revs.CreateRevision(f.ctx, doc.ID, CreateRevisionRequest{LockVersion: intPtr(approved.LockVersion)})
	if err != nil {
		t.Fatalf("Expected correction draft, got %v", err)
	}
	if next.Revision.RevisionNumber != 2 || next.Revision.VendorName != "Globex Supplies" {
		t.Errorf("Expected revision #2 copied from #1, got #%d vendor %q", next.Revision.RevisionNumber, next.Revision.VendorName)
	}
	if len(next.Revision.LineItems) != 2 {
		t.Errorf("Expected copied line items, got %d", len(next.Revision.LineItems))
	}

	history, err := revs.ListRevisions(f.ctx, doc.ID)
	if err != nil {
		t.Fatalf("Expected history, got %v", err)
	}
	statuses := map[int]string{}
	for _, h := range history {
		statuses[h.RevisionNumber] = h.Status
	}
	if statuses[1] != model.RevisionSuperseded || statuses[2] != model.RevisionDraft {
		t.Errorf("Expected #1 SUPERSEDED and #2 DRAFT, got %v", statuses)
	}

	discarded, err := revs.DiscardRevision(f.ctx, doc.ID, next.Revision.ID, next.LockVersion)
	if err != nil {
		t.Fatalf("Expected discard, got %v", err)
	}
	if _, err := revs.GetRevision(f.ctx, doc.ID, next.Revision.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected discarded draft to be gone, got %v", err)
	}
	if discarded.LockVersion != next.LockVersion+1 {
		t.Errorf("Expected lock version %d, got %d", next.LockVersion+1, discarded.LockVersion)
	}
	for action, want := range map[string]int64{
		model.ActionRevisionCreated:   2,
		model.ActionRevisionUpdated:   1,
		model.ActionApprove:           1,
		model.ActionRevisionDiscarded: 1,
	} {
		if got := f.auditCount(t, action); got != want {
			t.Errorf("Expected %d %s audit rows, got %d", want, action, got)
		}
	}
}

func TestApproveBlockedByErrorsAndDuplicates(t *testing.T) {
	f := newFixture(t)
	docs := f.documentService()
	revs := f.revisionService()

	doc := f.upload(t, docs, "usd", false)
	draft, err := revs.CreateRevision(f.ctx, doc.ID, CreateRevisionRequest{
		LockVersion:   intPtr(doc.LockVersion),
		RevisionInput: RevisionInput{Currency: strPtr("USD"), ExchangeRate: decPtr("0"), Subtotal: decPtr("100")},
	})
	if err != nil {
		t.Fatalf("Expected draft, got %v", err)
	}
	_, err = revs.ApproveRevision(f.ctx, doc.ID, draft.Revision.ID, LockRequest{LockVersion: intPtr(draft.LockVersion)})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeValidation {
		t.Fatalf("Expected validation error for missing exchange rate, got %v", err)
	}
	if appErr.Details == nil {
		t.Error("Expected validation issues in error details")
	}

	f.upload(t, docs, "twin", false)
	twin := f.upload(t, docs, "twin", false)
	twinDraft, err := revs.CreateRevision(f.ctx, twin.ID, CreateRevisionRequest{LockVersion: intPtr(twin.LockVersion)})
	if err != nil {
		t.Fatalf("Expected draft, got %v", err)
	}
	_, err = revs.ApproveRevision(f.ctx, twin.ID, twinDraft.Revision.ID, LockRequest{LockVersion: intPtr(twinDraft.LockVersion)})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected suspected duplicate to block approval, got %v", err)
	}
}

func TestHomeOverrideKeptOnRecalculation(t *testing.T) {
	f := newFixture(t)
	docs := f.documentService()
	revs := f.revisionService()
	doc := f.upload(t, docs, "fx", false)

	lines := []LineItemInput{
		{Description: "Licence", Amount: dec("100"), IsHomeAmountOverride: true, HomeAmount: decPtr("130.50")},
		{Description: "Support", Amount: dec("10"), HomeAmount: decPtr("999")},
	}
	res, err := revs.CreateRevision(f.ctx, doc.ID, CreateRevisionRequest{
		LockVersion: intPtr(doc.LockVersion),
		RevisionInput: RevisionInput{
			Currency:     strPtr("usd"),
			ExchangeRate: decPtr("1.35"),
			LineItems:    &lines,
		},
	})
	if err != nil {
		t.Fatalf("Expected draft, got %v", err)
	}
	got := res.Revision.LineItems
	if len(got) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(got))
	}
	if got[0].HomeAmount != "130.50" || !got[0].IsHomeAmountOverride {
		t.Errorf("Expected override 130.50 kept, got %s", got[0].HomeAmount)
	}
	if got[1].HomeAmount != "13.50" || got[1].IsHomeAmountOverride {
		t.Errorf("Expected unflagged home amount recomputed to 13.50, got %s", got[1].HomeAmount)
	}
	if res.Revision.Currency != "USD" || res.Revision.HomeSubtotal != "144.00" {
		t.Errorf("Expected USD with home subtotal 144.00, got %s %s", res.Revision.Currency, res.Revision.HomeSubtotal)
	}
}

func TestDefaultGSTFromActiveTaxCode(t *testing.T) {
	f := newFixture(t)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := f.db.Create(&model.TaxCode{TenantID: f.tenantID, Code: "SR", Rate: dec("0.09"), EffectiveFrom: from}).Error; err != nil {
		t.Fatalf("Failed to seed tax code: %v", err)
	}
	docs := f.documentService()
	revs := f.revisionService()
	doc := f.upload(t, docs, "gst", false)

	lines := []LineItemInput{{Description: "Widgets", Quantity: dec("4"), UnitPrice: dec("25"), TaxCode: "sr"}}
	res, err := revs.CreateRevision(f.ctx, doc.ID, CreateRevisionRequest{
		LockVersion:   intPtr(doc.LockVersion),
		RevisionInput: RevisionInput{DocumentDate: strPtr("2024-06-30"), LineItems: &lines},
	})
	if err != nil {
		t.Fatalf("Expected draft, got %v", err)
	}
	if l := res.Revision.LineItems[0]; l.TaxCode != "SR" || l.GSTAmount != "9.00" {
		t.Errorf("Expected SR GST 9.00, got %s %s", l.TaxCode, l.GSTAmount)
	}
	if res.Revision.TotalAmount != "109.00" {
		t.Errorf("Expected total 109.00, got %s", res.Revision.TotalAmount)
	}
}
