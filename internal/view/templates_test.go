package view

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/quotations"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderQuotation(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	email := "sales@acme.test"
	notes := "Delivery <within> 5 days"
	q := quotations.Quotation{
		QuotationNumber: "QT-202603-0001",
		VendorName:      "Acme Supplies",
		VendorEmail:     &email,
		IssueDate:       shared.NewDate(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)),
		ExpiryDate:      shared.NewDate(time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC)),
		Currency:        "USD",
		Subtotal:        decimal.RequireFromString("250"),
		TaxAmount:       decimal.RequireFromString("20"),
		TotalAmount:     decimal.RequireFromString("270"),
		Status:          quotations.StatusDraft,
		Notes:           &notes,
		Items: []quotations.Item{{
			Description: "Water filters",
			Quantity:    decimal.NewFromInt(10),
			UnitPrice:   decimal.RequireFromString("25"),
			TaxRate:     decimal.NewFromInt(8),
			TaxAmount:   decimal.RequireFromString("20"),
			TotalAmount: decimal.RequireFromString("270"),
		}},
	}

	html, err := engine.Render("quotation.html", q)
	require.NoError(t, err)
	assert.Contains(t, html, "Quotation QT-202603-0001")
	assert.Contains(t, html, "15 Mar 2026")
	assert.Contains(t, html, "USD 270.00")
	assert.Contains(t, html, "sales@acme.test")
	assert.Contains(t, html, "Water filters")
	assert.Contains(t, html, "Delivery &lt;within&gt; 5 days")
	assert.NotContains(t, html, "Terms")
}

func TestRenderUnknownTemplate(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	_, err = engine.Render("missing.html", nil)
	assert.Error(t, err)

	var nilEngine *Engine
	_, err = nilEngine.Render("quotation.html", nil)
	assert.Error(t, err)
}
