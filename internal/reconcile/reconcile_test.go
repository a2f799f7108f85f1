package reconcile

import (
	"testing"
	"time"

	"backoffice/internal/model"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"-1.005", "-1.01"},
		{"2.5", "2.5"},
		{"10", "10"},
	}
	for _, tt := range tests {
		if got := Round2(d(tt.in)); !got.Equal(d(tt.want)) {
			t.Errorf("Round2(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestToHome(t *testing.T) {
	got, err := ToHome(d("100.00"), d("1.3456"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !got.Equal(d("134.56")) {
		t.Errorf("Expected 134.56, got %s", got)
	}

	if _, err := ToHome(d("100"), decimal.Zero); err != ErrInvalidRate {
		t.Errorf("Expected ErrInvalidRate for zero rate, got %v", err)
	}
	if _, err := ToHome(d("100"), d("-1")); err != ErrInvalidRate {
		t.Errorf("Expected ErrInvalidRate for negative rate, got %v", err)
	}
}

func TestRecalculateLineRespectsOverrides(t *testing.T) {
	line := model.LineItem{
		Quantity:             d("2"),
		UnitPrice:            d("10.50"),
		GSTAmount:            d("1.89"),
		HomeAmount:           d("99.99"),
		IsHomeAmountOverride: true,
	}
	RecalculateLine(&line, d("1.5"))

	if !line.Amount.Equal(d("21")) {
		t.Errorf("Expected amount filled from qty × price = 21, got %s", line.Amount)
	}
	if !line.HomeAmount.Equal(d("99.99")) {
		t.Errorf("Expected overridden home amount to survive, got %s", line.HomeAmount)
	}
	if !line.HomeGSTAmount.Equal(d("2.84")) {
		t.Errorf("Expected home GST 2.84, got %s", line.HomeGSTAmount)
	}
}

func TestApplyTotalsWithLines(t *testing.T) {
	rev := &model.DocumentRevision{
		Currency:     "USD",
		HomeCurrency: "SGD",
		ExchangeRate: d("1.35"),
		Subtotal:     d("1"), // replaced by the line sums
		LineItems: []model.LineItem{
			{Amount: d("100.00"), GSTAmount: d("9.00")},
			{Amount: d("50.10"), GSTAmount: d("4.51")},
		},
	}
	ApplyTotals(rev)

	checks := map[string][2]decimal.Decimal{
		"subtotal":      {rev.Subtotal, d("150.10")},
		"tax":           {rev.TaxAmount, d("13.51")},
		"total":         {rev.TotalAmount, d("163.61")},
		"home subtotal": {rev.HomeSubtotal, d("202.64")}, // 135.00 + 67.64
		"home tax":      {rev.HomeTaxAmount, d("18.24")}, // 12.15 + 6.09
		"home total":    {rev.HomeTotal, d("220.88")},
	}
	for name, c := range checks {
		if !c[0].Equal(c[1]) {
			t.Errorf("%s: expected %s, got %s", name, c[1], c[0])
		}
	}
	if !rev.HomeTotal.Equal(rev.HomeSubtotal.Add(rev.HomeTaxAmount)) {
		t.Error("Expected home total to equal home subtotal + home tax")
	}
	if rev.LineItems[1].LineNumber != 2 {
		t.Errorf("Expected line numbers to be assigned, got %d", rev.LineItems[1].LineNumber)
	}
}

func TestApplyTotalsHomeTotalWithOverrides(t *testing.T) {
	rev := &model.DocumentRevision{
		Currency:     "EUR",
		HomeCurrency: "SGD",
		ExchangeRate: d("1.4"),
		LineItems: []model.LineItem{
			{Amount: d("10"), GSTAmount: d("1"), HomeAmount: d("15"), IsHomeAmountOverride: true},
		},
	}
	ApplyTotals(rev)
	if !rev.HomeSubtotal.Equal(d("15")) || !rev.HomeTaxAmount.Equal(d("1.4")) || !rev.HomeTotal.Equal(d("16.4")) {
		t.Errorf("Unexpected home totals: %s + %s = %s", rev.HomeSubtotal, rev.HomeTaxAmount, rev.HomeTotal)
	}
}

func TestApplyTotalsWithoutLines(t *testing.T) {
	rev := &model.DocumentRevision{
		Currency:     "SGD",
		HomeCurrency: "SGD",
		Subtotal:     d("100"),
		TaxAmount:    d("9"),
	}
	ApplyTotals(rev)
	if !rev.ExchangeRate.Equal(d("1")) {
		t.Errorf("Expected same-currency rate to default to 1, got %s", rev.ExchangeRate)
	}
	if !rev.TotalAmount.Equal(d("109")) || !rev.HomeTotal.Equal(d("109")) {
		t.Errorf("Expected totals of 109, got %s / %s", rev.TotalAmount, rev.HomeTotal)
	}
}

func issueCodes(issues []model.ValidationIssue) map[string]string {
	out := make(map[string]string, len(issues))
	for _, i := range issues {
		out[i.Code] = i.Severity
	}
	return out
}

func TestValidate(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	valid := func() *model.DocumentRevision {
		return &model.DocumentRevision{
			VendorName:     "Acme Pte Ltd",
			DocumentNumber: "INV-001",
			DocumentDate:   &date,
			Currency:       "SGD",
			HomeCurrency:   "SGD",
			ExchangeRate:   d("1"),
			Subtotal:       d("100"),
			TaxAmount:      d("9"),
			TotalAmount:    d("109"),
			HomeSubtotal:   d("100"),
			HomeTaxAmount:  d("9"),
			HomeTotal:      d("109"),
		}
	}

	tests := []struct {
		name     string
		mutate   func(r *model.DocumentRevision)
		wantCode string
		wantSev  string
	}{
		{"missing vendor", func(r *model.DocumentRevision) { r.VendorName = " " }, IssueMissingVendor, model.SeverityWarning},
		{"missing number", func(r *model.DocumentRevision) { r.DocumentNumber = "" }, IssueMissingDocumentNumber, model.SeverityWarning},
		{"missing date", func(r *model.DocumentRevision) { r.DocumentDate = nil }, IssueMissingDocumentDate, model.SeverityWarning},
		{"invalid currency", func(r *model.DocumentRevision) { r.Currency = "usd" }, IssueInvalidCurrency, model.SeverityError},
		{"foreign without rate", func(r *model.DocumentRevision) { r.Currency = "USD"; r.ExchangeRate = decimal.Zero }, IssueMissingExchangeRate, model.SeverityError},
		{"same currency rate not one", func(r *model.DocumentRevision) { r.ExchangeRate = d("1.2") }, IssueMissingExchangeRate, model.SeverityError},
		{"total mismatch", func(r *model.DocumentRevision) { r.TotalAmount = d("110") }, IssueTotalMismatch, model.SeverityError},
		{"home total mismatch", func(r *model.DocumentRevision) { r.HomeTotal = d("108") }, IssueHomeTotalMismatch, model.SeverityError},
		{"negative total", func(r *model.DocumentRevision) {
			r.Subtotal, r.TaxAmount, r.TotalAmount = d("-100"), d("-9"), d("-109")
			r.HomeSubtotal, r.HomeTaxAmount, r.HomeTotal = d("-100"), d("-9"), d("-109")
		}, IssueNegativeTotal, model.SeverityWarning},
	}

	if issues := Validate(valid()); len(issues) != 0 {
		t.Fatalf("Expected no issues for a clean revision, got %+v", issues)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rev := valid()
			tt.mutate(rev)
			codes := issueCodes(Validate(rev))
			sev, ok := codes[tt.wantCode]
			if !ok {
				t.Fatalf("Expected issue %s, got %v", tt.wantCode, codes)
			}
			if sev != tt.wantSev {
				t.Errorf("Expected severity %s, got %s", tt.wantSev, sev)
			}
		})
	}
}

func TestValidateLineItems(t *testing.T) {
	rev := &model.DocumentRevision{
		VendorName:     "Acme",
		DocumentNumber: "1",
		Currency:       "SGD",
		HomeCurrency:   "SGD",
		ExchangeRate:   d("1"),
		Subtotal:       d("30"),
		TaxAmount:      d("2"),
		TotalAmount:    d("32"),
		HomeSubtotal:   d("30"),
		HomeTaxAmount:  d("2"),
		HomeTotal:      d("32"),
		LineItems: []model.LineItem{
			{Quantity: d("2"), UnitPrice: d("10"), Amount: d("25"), GSTAmount: d("1")},
		},
	}
	codes := issueCodes(Validate(rev))
	for _, want := range []string{IssueLineSubtotalMismatch, IssueLineTaxMismatch, IssueLineAmountMismatch} {
		if _, ok := codes[want]; !ok {
			t.Errorf("Expected issue %s, got %v", want, codes)
		}
	}
	if codes[IssueLineAmountMismatch] != model.SeverityWarning {
		t.Errorf("Expected line amount mismatch to be a warning")
	}
}

func TestReconcileClearsLineMismatches(t *testing.T) {
	rev := &model.DocumentRevision{
		VendorName:     "Acme",
		DocumentNumber: "1",
		Currency:       "USD",
		HomeCurrency:   "SGD",
		ExchangeRate:   d("1.35"),
		LineItems: []model.LineItem{
			{Quantity: d("3"), UnitPrice: d("9.99"), GSTAmount: d("2.70")},
		},
	}
	issues := Reconcile(rev)
	if HasErrors(issues) {
		t.Fatalf("Expected no blocking issues after reconciliation, got %+v", issues)
	}
	if len(rev.ValidationIssues) != len(issues) {
		t.Error("Expected issues to be stored on the revision")
	}
	if !rev.Subtotal.Equal(d("29.97")) {
		t.Errorf("Expected subtotal 29.97, got %s", rev.Subtotal)
	}
}
