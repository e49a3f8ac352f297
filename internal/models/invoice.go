package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the processing state of an invoice record.
// APPROVED is terminal: no transition or field mutation is allowed after it.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusReviewRequired Status = "REVIEW_REQUIRED"
	StatusApproved       Status = "APPROVED"
)

// Severity of a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a single validation outcome attached to a field.
type Finding struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// LineItem is one product/service row on an invoice.
// Amount is expected to equal Quantity * UnitPrice.
type LineItem struct {
	ProductName string   `json:"product_name"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	Amount      *float64 `json:"amount"`
}

// Invoice is the canonical extracted record. Pointer fields are nil when the
// extractor could not find the value; absence is data, not an error.
type Invoice struct {
	ID      uuid.UUID `db:"id"`
	OwnerID uuid.UUID `db:"owner_id"`

	VendorName    *string    `db:"vendor_name"`
	InvoiceNumber *string    `db:"invoice_number"`
	InvoiceDate   *time.Time `db:"invoice_date"`
	Currency      *string    `db:"currency"`

	LineItems []LineItem `db:"line_items"`

	Subtotal           *float64 `db:"subtotal"`
	DiscountPercentage *float64 `db:"discount_percentage"`
	DiscountAmount     *float64 `db:"discount_amount"`
	CGSTRate           *float64 `db:"cgst_rate"`
	CGSTAmount         *float64 `db:"cgst_amount"`
	SGSTRate           *float64 `db:"sgst_rate"`
	SGSTAmount         *float64 `db:"sgst_amount"`
	Tax                *float64 `db:"tax"`
	TotalAmount        *float64 `db:"total_amount"`

	Status             Status    `db:"status"`
	ValidationErrors   []Finding `db:"validation_errors"`
	ValidationWarnings []Finding `db:"validation_warnings"`

	CreatedAt time.Time `db:"created_at"`
}

// BlockingFindings returns the persisted error-severity findings.
func (i *Invoice) BlockingFindings() []Finding {
	return i.ValidationErrors
}

// IsValid reports whether the record carries no blocking findings.
func (i *Invoice) IsValid() bool {
	return len(i.ValidationErrors) == 0
}
