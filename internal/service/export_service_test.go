package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/tenancy"

	"github.com/xuri/excelize/v2"
)

func TestExportApprovedWorkbook(t *testing.T) {
	f := newFixture(t)
	docs := f.documentService()
	revs := f.revisionService()

	approvedDoc := f.upload(t, docs, "approved", false)
	lines := []LineItemInput{{Description: "Audit fee", Amount: dec("1000"), GSTAmount: decPtr("90")}}
	draft, err := revs.CreateRevision(f.ctx, approvedDoc.ID, CreateRevisionRequest{
		LockVersion: intPtr(approvedDoc.LockVersion),
		RevisionInput: RevisionInput{
			VendorName:     strPtr("Umbrella LLP"),
			DocumentNumber: strPtr("UMB-42"),
			DocumentDate:   strPtr("2024-04-15"),
			LineItems:      &lines,
		},
	})
	if err != nil {
		t.Fatalf("Expected draft, got %v", err)
	}
	if _, err := revs.ApproveRevision(f.ctx, approvedDoc.ID, draft.Revision.ID, LockRequest{LockVersion: intPtr(draft.LockVersion)}); err != nil {
		t.Fatalf("Expected approval, got %v", err)
	}

	// drafts are never exported
	pending := f.upload(t, docs, "pending", false)
	if _, err := revs.CreateRevision(f.ctx, pending.ID, CreateRevisionRequest{LockVersion: intPtr(pending.LockVersion)}); err != nil {
		t.Fatalf("Expected draft, got %v", err)
	}

	svc := NewExportService(f.docs, f.audit)
	file, err := svc.ExportApproved(f.ctx, ExportRequest{CompanyID: f.company.ID.String()})
	if err != nil {
		t.Fatalf("Expected export, got %v", err)
	}
	if file.Rows != 1 {
		t.Errorf("Expected 1 exported row, got %d", file.Rows)
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		t.Fatalf("Expected workbook bytes, got %v", err)
	}
	wb, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("Expected a readable workbook, got %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(documentsSheet)
	if err != nil {
		t.Fatalf("Expected %s sheet, got %v", documentsSheet, err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected header plus 1 row, got %d", len(rows))
	}
	if rows[0][0] != "Document ID" || rows[1][0] != approvedDoc.ID {
		t.Errorf("Expected row for %s, got %v", approvedDoc.ID, rows[1])
	}
	lineRows, err := wb.GetRows(linesSheet)
	if err != nil {
		t.Fatalf("Expected %s sheet, got %v", linesSheet, err)
	}
	if len(lineRows) != 2 {
		t.Errorf("Expected header plus 1 line, got %d", len(lineRows))
	}
	if f.auditCount(t, model.ActionExport) != 1 {
		t.Error("Expected an EXPORT audit row")
	}

	if _, err := svc.ExportApproved(f.ctx, ExportRequest{From: "2024-05-01", To: "2024-04-01"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected validation error for inverted range, got %v", err)
	}
}

func TestExportRequiresPermission(t *testing.T) {
	f := newFixture(t)
	ctx := tenancy.WithPrincipal(context.Background(), &tenancy.Principal{
		UserID:     f.admin.ID,
		TenantID:   &f.tenantID,
		SystemRole: model.SystemRoleUser,
	})
	_, err := NewExportService(f.docs, f.audit).ExportApproved(ctx, ExportRequest{})
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("Expected permission denied, got %v", err)
	}
}
