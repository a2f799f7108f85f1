package reconcile

import (
	"fmt"
	"strings"

	"backoffice/internal/model"
)

// Issue codes
const (
	IssueMissingVendor         = "MISSING_VENDOR"
	IssueMissingDocumentNumber = "MISSING_DOCUMENT_NUMBER"
	IssueMissingDocumentDate   = "MISSING_DOCUMENT_DATE"
	IssueInvalidCurrency       = "INVALID_CURRENCY"
	IssueMissingExchangeRate   = "MISSING_EXCHANGE_RATE"
	IssueTotalMismatch         = "TOTAL_MISMATCH"
	IssueHomeTotalMismatch     = "HOME_TOTAL_MISMATCH"
	IssueLineSubtotalMismatch  = "LINE_SUBTOTAL_MISMATCH"
	IssueLineTaxMismatch       = "LINE_TAX_MISMATCH"
	IssueLineAmountMismatch    = "LINE_AMOUNT_MISMATCH"
	IssueNegativeTotal         = "NEGATIVE_TOTAL"
)

// Validate checks a revision's header and line items and returns every issue found.
// Issues with ERROR severity block approval.
func Validate(rev *model.DocumentRevision) []model.ValidationIssue {
	issues := make([]model.ValidationIssue, 0)
	add := func(code, severity, field, msg string) {
		issues = append(issues, model.ValidationIssue{Code: code, Severity: severity, Field: field, Message: msg})
	}

	if strings.TrimSpace(rev.VendorName) == "" && rev.ContactID == nil {
		add(IssueMissingVendor, model.SeverityWarning, "vendor_name", "vendor is missing")
	}
	if strings.TrimSpace(rev.DocumentNumber) == "" {
		add(IssueMissingDocumentNumber, model.SeverityWarning, "document_number", "document number is missing")
	}
	if rev.DocumentDate == nil {
		add(IssueMissingDocumentDate, model.SeverityWarning, "document_date", "document date is missing")
	}

	currencyOK := true
	if !ValidCurrency(rev.Currency) {
		currencyOK = false
		add(IssueInvalidCurrency, model.SeverityError, "currency", fmt.Sprintf("currency %q is not a valid ISO-4217 code", rev.Currency))
	}
	if !ValidCurrency(rev.HomeCurrency) {
		currencyOK = false
		add(IssueInvalidCurrency, model.SeverityError, "home_currency", fmt.Sprintf("home currency %q is not a valid ISO-4217 code", rev.HomeCurrency))
	}
	if currencyOK {
		switch {
		case rev.Currency != rev.HomeCurrency && !rev.ExchangeRate.IsPositive():
			add(IssueMissingExchangeRate, model.SeverityError, "exchange_rate",
				fmt.Sprintf("exchange rate from %s to %s is required", rev.Currency, rev.HomeCurrency))
		case rev.Currency == rev.HomeCurrency && !rev.ExchangeRate.Equal(one):
			add(IssueMissingExchangeRate, model.SeverityError, "exchange_rate",
				"exchange rate must be 1 when the document is in the home currency")
		}
	}

	if !Round2(rev.Subtotal.Add(rev.TaxAmount)).Equal(Round2(rev.TotalAmount)) {
		add(IssueTotalMismatch, model.SeverityError, "total_amount",
			fmt.Sprintf("total %s does not equal subtotal %s + tax %s",
				rev.TotalAmount.StringFixed(2), rev.Subtotal.StringFixed(2), rev.TaxAmount.StringFixed(2)))
	}
	if !Round2(rev.HomeSubtotal.Add(rev.HomeTaxAmount)).Equal(Round2(rev.HomeTotal)) {
		add(IssueHomeTotalMismatch, model.SeverityError, "home_total",
			fmt.Sprintf("home total %s does not equal home subtotal %s + home tax %s",
				rev.HomeTotal.StringFixed(2), rev.HomeSubtotal.StringFixed(2), rev.HomeTaxAmount.StringFixed(2)))
	}

	if len(rev.LineItems) > 0 {
		t := Summarize(rev.LineItems)
		if !t.Subtotal.Equal(Round2(rev.Subtotal)) {
			add(IssueLineSubtotalMismatch, model.SeverityError, "subtotal",
				fmt.Sprintf("line items sum to %s but subtotal is %s", t.Subtotal.StringFixed(2), rev.Subtotal.StringFixed(2)))
		}
		if !t.Tax.Equal(Round2(rev.TaxAmount)) {
			add(IssueLineTaxMismatch, model.SeverityError, "tax_amount",
				fmt.Sprintf("line GST sums to %s but tax is %s", t.Tax.StringFixed(2), rev.TaxAmount.StringFixed(2)))
		}
		for i, l := range rev.LineItems {
			if l.Quantity.IsZero() || l.UnitPrice.IsZero() {
				continue
			}
			expected := Round2(l.Quantity.Mul(l.UnitPrice))
			if !expected.Equal(Round2(l.Amount)) {
				add(IssueLineAmountMismatch, model.SeverityWarning, fmt.Sprintf("line_items[%d].amount", i),
					fmt.Sprintf("line %d amount %s does not equal quantity × unit price %s", i+1, l.Amount.StringFixed(2), expected.StringFixed(2)))
			}
		}
	}

	if rev.TotalAmount.IsNegative() {
		add(IssueNegativeTotal, model.SeverityWarning, "total_amount", "total is negative")
	}

	return issues
}

// HasErrors reports whether any issue blocks approval
func HasErrors(issues []model.ValidationIssue) bool {
	for _, i := range issues {
		if i.Severity == model.SeverityError {
			return true
		}
	}
	return false
}

// Reconcile recomputes derived amounts and stores the resulting issues on the revision
func Reconcile(rev *model.DocumentRevision) []model.ValidationIssue {
	ApplyTotals(rev)
	issues := Validate(rev)
	rev.ValidationIssues = issues
	return issues
}
