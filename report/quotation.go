package report

import (
	"context"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/quotations"
)

const quotationTemplate = "quotation.html"

// HTMLRenderer produces an HTML document from a named template.
type HTMLRenderer interface {
	Render(name string, data any) (string, error)
}

// QuotationRenderer prints quotations through the document templates and Gotenberg.
type QuotationRenderer struct {
	client *Client
	views  HTMLRenderer
}

// NewQuotationRenderer wires the template engine to the Gotenberg client.
func NewQuotationRenderer(client *Client, views HTMLRenderer) *QuotationRenderer {
	return &QuotationRenderer{client: client, views: views}
}

// RenderQuotation implements quotations.PDFRenderer.
func (r *QuotationRenderer) RenderQuotation(ctx context.Context, q quotations.Quotation) ([]byte, error) {
	html, err := r.views.Render(quotationTemplate, q)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html)
}

var _ quotations.PDFRenderer = (*QuotationRenderer)(nil)
