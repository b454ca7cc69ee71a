package quotations

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

var (
	hundred  = decimal.NewFromInt(100)
	moneyExp = int32(2)
	// maxAmount is the largest value a NUMERIC(14,2) money column holds.
	maxAmount = decimal.RequireFromString("999999999999.99")
	// maxQuantity matches quotation_items.quantity NUMERIC(12,2).
	maxQuantity = decimal.RequireFromString("9999999999.99")
)

// hasCents reports whether d fits two decimal places without rounding.
func hasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(moneyExp))
}

// priceLine fills the derived amounts of item.
func priceLine(item Item) Item {
	net := item.Quantity.Mul(item.UnitPrice)
	item.TaxAmount = net.Mul(item.TaxRate).Div(hundred).Round(moneyExp)
	item.TotalAmount = net.Round(moneyExp).Add(item.TaxAmount)
	return item
}

// computeTotals derives the header amounts from items.
//
//	subtotal = sum(quantity * unit_price)
//	tax      = sum(item tax)
//	total    = subtotal + tax - discount
func computeTotals(items []Item, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Quantity.Mul(item.UnitPrice))
		tax = tax.Add(item.TaxAmount)
	}
	subtotal = subtotal.Round(moneyExp)
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax).Sub(discount),
	}
}

// newItem validates input and returns a priced line.
func newItem(verr *shared.ValidationError, prefix string, input ItemInput) Item {
	item := Item{Description: input.Description, TaxRate: decimal.Zero}
	if input.Quantity != nil {
		item.Quantity = *input.Quantity
	}
	if input.UnitPrice != nil {
		item.UnitPrice = *input.UnitPrice
	}
	if input.TaxRate != nil {
		item.TaxRate = *input.TaxRate
	}
	checkLine(verr, prefix, item)
	return priceLine(item)
}

// applyItemUpdate merges input into item and reprices it.
func applyItemUpdate(verr *shared.ValidationError, item Item, input ItemUpdateInput) Item {
	if input.Description != nil {
		item.Description = *input.Description
	}
	if input.Quantity != nil {
		item.Quantity = *input.Quantity
	}
	if input.UnitPrice != nil {
		item.UnitPrice = *input.UnitPrice
	}
	if input.TaxRate != nil {
		item.TaxRate = *input.TaxRate
	}
	checkLine(verr, "", item)
	return priceLine(item)
}

func checkLine(verr *shared.ValidationError, prefix string, item Item) {
	field := func(name string) string {
		if prefix == "" {
			return name
		}
		return fmt.Sprintf("%s.%s", prefix, name)
	}
	valid := true
	switch {
	case !item.Quantity.IsPositive():
		verr.Add(field("quantity"), "The quantity must be greater than 0.")
		valid = false
	case !hasCents(item.Quantity):
		verr.Add(field("quantity"), "The quantity may have at most 2 decimal places.")
		valid = false
	case item.Quantity.GreaterThan(maxQuantity):
		verr.Add(field("quantity"), "The quantity is too large.")
		valid = false
	}
	switch {
	case item.UnitPrice.IsNegative():
		verr.Add(field("unit_price"), "The unit price must be at least 0.")
		valid = false
	case !hasCents(item.UnitPrice):
		verr.Add(field("unit_price"), "The unit price may have at most 2 decimal places.")
		valid = false
	case item.UnitPrice.GreaterThan(maxAmount):
		verr.Add(field("unit_price"), "The unit price is too large.")
		valid = false
	}
	switch {
	case item.TaxRate.IsNegative() || item.TaxRate.GreaterThan(hundred):
		verr.Add(field("tax_rate"), "The tax rate must be between 0 and 100.")
		valid = false
	case !hasCents(item.TaxRate):
		verr.Add(field("tax_rate"), "The tax rate may have at most 2 decimal places.")
		valid = false
	}
	if !valid {
		return
	}
	// The stored subtotal is NUMERIC(14,2), so every line net must be exact in cents.
	line := priceLine(item)
	net := item.Quantity.Mul(item.UnitPrice)
	key := prefix
	if key == "" {
		key = "unit_price"
	}
	switch {
	case !hasCents(net):
		verr.Add(key, "The line amount (quantity x unit price) must be a whole number of cents.")
	case line.TotalAmount.GreaterThan(maxAmount):
		verr.Add(key, "The line amount is too large.")
	}
}

func checkDiscount(verr *shared.ValidationError, discount *decimal.Decimal) {
	if discount == nil {
		return
	}
	switch {
	case discount.IsNegative():
		verr.Add("discount_amount", "The discount amount must be at least 0.")
	case !hasCents(*discount):
		verr.Add("discount_amount", "The discount amount may have at most 2 decimal places.")
	case discount.GreaterThan(maxAmount):
		verr.Add("discount_amount", "The discount amount is too large.")
	}
}

// checkTotals rejects header amounts the money columns cannot store.
func checkTotals(totals Totals) error {
	for _, amount := range []decimal.Decimal{totals.Subtotal, totals.TaxAmount, totals.Total} {
		if amount.Abs().GreaterThan(maxAmount) {
			return shared.Invalid("items", "The quotation total is too large.")
		}
	}
	return nil
}

func checkDates(verr *shared.ValidationError, issue, expiry shared.Date) {
	if issue.IsZero() {
		verr.Add("issue_date", "The issue date field is required.")
	}
	if expiry.IsZero() {
		verr.Add("expiry_date", "The expiry date field is required.")
	}
	if !issue.IsZero() && !expiry.IsZero() && !expiry.After(issue.Time) {
		verr.Add("expiry_date", "The expiry date must be a date after issue date.")
	}
}
