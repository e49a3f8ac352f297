package dto

import (
	"time"

	"invox/internal/models"
)

type LineItemResponse struct {
	ProductName string   `json:"product_name"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	Amount      *float64 `json:"amount"`
}

type FindingResponse struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// InvoiceResponse is the full record as returned by ingest, get and approve.
type InvoiceResponse struct {
	ID            string  `json:"id"`
	VendorName    *string `json:"vendor_name"`
	InvoiceNumber *string `json:"invoice_number"`
	InvoiceDate   *string `json:"invoice_date"`
	Currency      *string `json:"currency"`

	LineItems []LineItemResponse `json:"line_items"`

	Subtotal           *float64 `json:"subtotal"`
	DiscountPercentage *float64 `json:"discount_percentage"`
	DiscountAmount     *float64 `json:"discount_amount"`
	CGSTRate           *float64 `json:"cgst_rate"`
	CGSTAmount         *float64 `json:"cgst_amount"`
	SGSTRate           *float64 `json:"sgst_rate"`
	SGSTAmount         *float64 `json:"sgst_amount"`
	Tax                *float64 `json:"tax"`
	TotalAmount        *float64 `json:"total_amount"`

	Status             string            `json:"status"`
	IsValid            bool              `json:"is_valid"`
	ValidationErrors   []FindingResponse `json:"validation_errors"`
	ValidationWarnings []FindingResponse `json:"validation_warnings"`

	CreatedAt string `json:"created_at"`
}

type InvoiceListResponse struct {
	Count    int               `json:"count"`
	Invoices []InvoiceResponse `json:"invoices"`
}

// NewInvoiceResponse maps the domain record to its API shape.
func NewInvoiceResponse(inv *models.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:                 inv.ID.String(),
		VendorName:         inv.VendorName,
		InvoiceNumber:      inv.InvoiceNumber,
		Currency:           inv.Currency,
		Subtotal:           inv.Subtotal,
		DiscountPercentage: inv.DiscountPercentage,
		DiscountAmount:     inv.DiscountAmount,
		CGSTRate:           inv.CGSTRate,
		CGSTAmount:         inv.CGSTAmount,
		SGSTRate:           inv.SGSTRate,
		SGSTAmount:         inv.SGSTAmount,
		Tax:                inv.Tax,
		TotalAmount:        inv.TotalAmount,
		Status:             string(inv.Status),
		IsValid:            inv.IsValid(),
		LineItems:          make([]LineItemResponse, 0, len(inv.LineItems)),
		ValidationErrors:   toFindingResponses(inv.ValidationErrors),
		ValidationWarnings: toFindingResponses(inv.ValidationWarnings),
		CreatedAt:          inv.CreatedAt.Format(time.RFC3339),
	}

	if inv.InvoiceDate != nil {
		date := inv.InvoiceDate.Format("2006-01-02")
		resp.InvoiceDate = &date
	}
	for _, item := range inv.LineItems {
		resp.LineItems = append(resp.LineItems, LineItemResponse{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		})
	}

	return resp
}

func toFindingResponses(findings []models.Finding) []FindingResponse {
	out := make([]FindingResponse, 0, len(findings))
	for _, f := range findings {
		out = append(out, FindingResponse{
			Field:    f.Field,
			Message:  f.Message,
			Severity: string(f.Severity),
		})
	}
	return out
}
