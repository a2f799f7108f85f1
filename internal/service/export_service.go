package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/rbac"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	documentsSheet = "Documents"
	linesSheet     = "Line Items"
)

var (
	documentHeaders = []interface{}{
		"Document ID", "Company", "UEN", "File Name", "Vendor", "Document Number", "Document Date",
		"Due Date", "Currency", "Exchange Rate", "Subtotal", "Tax", "Total", "Home Currency",
		"Home Subtotal", "Home Tax", "Home Total", "Duplicate Status", "Revision", "Approved At",
	}
	lineHeaders = []interface{}{
		"Document ID", "Document Number", "Line", "Description", "Quantity", "Unit Price", "Amount",
		"Tax Code", "GST", "Home Amount", "Home GST",
	}
)

// --- DTOs ---

type ExportRequest struct {
	CompanyID string
	TagID     string
	From      string
	To        string
}

// ExportFile is a rendered workbook ready to stream
type ExportFile struct {
	FileName string
	Rows     int
	workbook *excelize.File
}

// WriteTo streams the workbook and releases it
func (f *ExportFile) WriteTo(w io.Writer) (int64, error) {
	defer f.workbook.Close()
	return f.workbook.WriteTo(w)
}

// --- Interface ---

type ExportService interface {
	ExportApproved(ctx context.Context, req ExportRequest) (*ExportFile, error)
}

type exportService struct {
	docs  repository.DocumentRepository
	audit AuditService
}

func NewExportService(docs repository.DocumentRepository, audit AuditService) ExportService {
	return &exportService{docs: docs, audit: audit}
}

// --- Implementation ---

// ExportApproved renders approved revisions of readable documents into a
// workbook with one sheet of headers and one of line items
func (s *exportService) ExportApproved(ctx context.Context, req ExportRequest) (*ExportFile, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	access := p.Access(rbac.ResourceDocuments, rbac.ActionExport)
	if access.None() {
		return nil, apperr.Forbidden("missing permission documents.export")
	}

	filter := repository.ExportFilter{
		Scopes: []repository.Scope{
			tenancy.Scope(p, "processing_documents.tenant_id"),
			access.Scope("processing_documents.company_id"),
		},
	}
	if filter.CompanyID, err = parseOptionalID(&req.CompanyID, "company_id"); err != nil {
		return nil, err
	}
	if filter.TagID, err = parseOptionalID(&req.TagID, "tag_id"); err != nil {
		return nil, err
	}
	if filter.From, err = parseOptionalDate(&req.From, "from"); err != nil {
		return nil, err
	}
	if filter.To, err = parseOptionalDate(&req.To, "to"); err != nil {
		return nil, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, apperr.Validation("to must not be before from")
	}

	rows, err := s.docs.ListExportRows(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load export rows: %w", err)
	}
	wb, err := buildWorkbook(rows)
	if err != nil {
		return nil, err
	}

	if err := s.audit.Record(ctx, AuditEntry{
		CompanyID:  filter.CompanyID,
		Action:     model.ActionExport,
		EntityType: model.EntityDocument,
		EntityID:   "export",
		After: map[string]interface{}{
			"rows":       len(rows),
			"company_id": req.CompanyID,
			"tag_id":     req.TagID,
			"from":       req.From,
			"to":         req.To,
		},
	}); err != nil {
		wb.Close()
		return nil, err
	}

	return &ExportFile{
		FileName: fmt.Sprintf("documents-%s.xlsx", time.Now().Format("20060102-150405")),
		Rows:     len(rows),
		workbook: wb,
	}, nil
}

// --- Helpers ---

func buildWorkbook(rows []repository.ExportRow) (*excelize.File, error) {
	wb := excelize.NewFile()
	fail := func(err error) (*excelize.File, error) {
		wb.Close()
		return nil, fmt.Errorf("failed to build workbook: %w", err)
	}

	if err := wb.SetSheetName("Sheet1", documentsSheet); err != nil {
		return fail(err)
	}
	if _, err := wb.NewSheet(linesSheet); err != nil {
		return fail(err)
	}
	bold, err := wb.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fail(err)
	}

	docs, err := wb.NewStreamWriter(documentsSheet)
	if err != nil {
		return fail(err)
	}
	if err := docs.SetRow("A1", styled(documentHeaders, bold)); err != nil {
		return fail(err)
	}
	lines, err := wb.NewStreamWriter(linesSheet)
	if err != nil {
		return fail(err)
	}
	if err := lines.SetRow("A1", styled(lineHeaders, bold)); err != nil {
		return fail(err)
	}

	lineRow := 2
	for i, r := range rows {
		rev := r.Revision
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := docs.SetRow(cell, []interface{}{
			r.Document.ID.String(),
			r.Company.Name,
			r.Company.UEN,
			r.Document.FileName,
			rev.VendorName,
			rev.DocumentNumber,
			dateCell(rev.DocumentDate),
			dateCell(rev.DueDate),
			rev.Currency,
			numberCell(rev.ExchangeRate),
			numberCell(rev.Subtotal),
			numberCell(rev.TaxAmount),
			numberCell(rev.TotalAmount),
			rev.HomeCurrency,
			numberCell(rev.HomeSubtotal),
			numberCell(rev.HomeTaxAmount),
			numberCell(rev.HomeTotal),
			r.Document.DuplicateStatus,
			rev.RevisionNumber,
			timeCell(rev.ApprovedAt),
		}); err != nil {
			return fail(err)
		}

		for _, l := range rev.LineItems {
			cell, _ := excelize.CoordinatesToCellName(1, lineRow)
			if err := lines.SetRow(cell, []interface{}{
				r.Document.ID.String(),
				rev.DocumentNumber,
				l.LineNumber,
				l.Description,
				numberCell(l.Quantity),
				numberCell(l.UnitPrice),
				numberCell(l.Amount),
				l.TaxCode,
				numberCell(l.GSTAmount),
				numberCell(l.HomeAmount),
				numberCell(l.HomeGSTAmount),
			}); err != nil {
				return fail(err)
			}
			lineRow++
		}
	}

	if err := docs.Flush(); err != nil {
		return fail(err)
	}
	if err := lines.Flush(); err != nil {
		return fail(err)
	}
	return wb, nil
}

func styled(headers []interface{}, style int) []interface{} {
	cells := make([]interface{}, 0, len(headers))
	for _, h := range headers {
		cells = append(cells, excelize.Cell{StyleID: style, Value: h})
	}
	return cells
}

// numberCell keeps amounts numeric in the sheet
func numberCell(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func dateCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
