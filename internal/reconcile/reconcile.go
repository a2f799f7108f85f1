// Package reconcile converts document amounts into the company's home currency
// and checks that line items and header totals agree.
package reconcile

import (
	"errors"
	"regexp"
	"strings"

	"backoffice/internal/model"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRate = errors.New("exchange rate must be greater than zero")

	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	one             = decimal.NewFromInt(1)
)

// Totals holds the summed amounts of a revision in both currencies
type Totals struct {
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	HomeSubtotal decimal.Decimal
	HomeTax      decimal.Decimal
	HomeTotal    decimal.Decimal
}

// Round2 rounds half away from zero to two decimal places
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ValidCurrency reports whether code looks like an ISO-4217 alphabetic code
func ValidCurrency(code string) bool {
	return currencyPattern.MatchString(code)
}

// NormalizeCurrency upper-cases and trims a currency code
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ToHome converts an amount at the given rate
func ToHome(amount, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, ErrInvalidRate
	}
	return Round2(amount.Mul(rate)), nil
}

// EffectiveRate returns the rate used for conversion. Same-currency documents
// without a rate convert at 1.
func EffectiveRate(currency, homeCurrency string, rate decimal.Decimal) decimal.Decimal {
	if currency == homeCurrency && rate.IsZero() {
		return one
	}
	return rate
}

// RecalculateLine fills a missing amount from quantity × unit price and
// recomputes the home values whose override flag is not set.
func RecalculateLine(line *model.LineItem, rate decimal.Decimal) {
	if line.Amount.IsZero() && !line.Quantity.IsZero() && !line.UnitPrice.IsZero() {
		line.Amount = Round2(line.Quantity.Mul(line.UnitPrice))
	}
	line.Amount = Round2(line.Amount)
	line.GSTAmount = Round2(line.GSTAmount)

	if !line.IsHomeAmountOverride {
		line.HomeAmount, _ = ToHome(line.Amount, rate)
	}
	if !line.IsHomeGSTOverride {
		line.HomeGSTAmount, _ = ToHome(line.GSTAmount, rate)
	}
}

// Summarize sums line items in both currencies
func Summarize(lines []model.LineItem) Totals {
	var t Totals
	for _, l := range lines {
		t.Subtotal = t.Subtotal.Add(l.Amount)
		t.Tax = t.Tax.Add(l.GSTAmount)
		t.HomeSubtotal = t.HomeSubtotal.Add(l.HomeAmount)
		t.HomeTax = t.HomeTax.Add(l.HomeGSTAmount)
	}
	t.Subtotal = Round2(t.Subtotal)
	t.Tax = Round2(t.Tax)
	t.HomeSubtotal = Round2(t.HomeSubtotal)
	t.HomeTax = Round2(t.HomeTax)
	t.Total = t.Subtotal.Add(t.Tax)
	t.HomeTotal = t.HomeSubtotal.Add(t.HomeTax)
	return t
}

// ApplyTotals recomputes a revision's derived amounts. With line items the header
// totals are replaced by the line sums; without them the header is converted as is.
// home_total always equals home_subtotal + home_tax afterwards.
func ApplyTotals(rev *model.DocumentRevision) {
	rate := EffectiveRate(rev.Currency, rev.HomeCurrency, rev.ExchangeRate)
	rev.ExchangeRate = rate

	if len(rev.LineItems) > 0 {
		for i := range rev.LineItems {
			rev.LineItems[i].LineNumber = i + 1
			RecalculateLine(&rev.LineItems[i], rate)
		}
		t := Summarize(rev.LineItems)
		rev.Subtotal = t.Subtotal
		rev.TaxAmount = t.Tax
		rev.TotalAmount = t.Total
		rev.HomeSubtotal = t.HomeSubtotal
		rev.HomeTaxAmount = t.HomeTax
		rev.HomeTotal = t.HomeTotal
		return
	}

	rev.Subtotal = Round2(rev.Subtotal)
	rev.TaxAmount = Round2(rev.TaxAmount)
	rev.TotalAmount = Round2(rev.TotalAmount)
	if rev.TotalAmount.IsZero() {
		rev.TotalAmount = rev.Subtotal.Add(rev.TaxAmount)
	}
	rev.HomeSubtotal, _ = ToHome(rev.Subtotal, rate)
	rev.HomeTaxAmount, _ = ToHome(rev.TaxAmount, rate)
	rev.HomeTotal = rev.HomeSubtotal.Add(rev.HomeTaxAmount)
}
