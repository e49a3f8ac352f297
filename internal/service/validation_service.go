package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invox/internal/models"
)

const (
	// Tolerance for monetary comparisons (one cent).
	amountTolerance = 0.01
	// Line-item sums accumulate rounding across rows, so the subtotal
	// cross-check gets more slack.
	subtotalTolerance = 1.0
	// Totals above this are flagged as probable OCR misreads.
	largeAmountThreshold = 1_000_000
)

// DuplicateLookup is the narrow store capability the validator needs. The
// lookup is a fast-path hint only: the store's unique constraint is the
// authoritative duplicate guard.
type DuplicateLookup interface {
	FindByNumber(ctx context.Context, ownerID uuid.UUID, vendor, number string) (*models.Invoice, error)
}

// A rule inspects a candidate and reports zero or more findings. Rules are
// pure and independent: every applicable rule always runs and findings
// accumulate, so one missing field never masks another.
type rule func(inv *models.Invoice) []models.Finding

// ValidationService applies the business rules to an extracted candidate and
// decides its initial status.
type ValidationService struct {
	dups     DuplicateLookup
	blocking []rule
	warning  []rule
	logger   *zap.Logger
}

func NewValidationService(dups DuplicateLookup, logger *zap.Logger) *ValidationService {
	return &ValidationService{
		dups: dups,
		blocking: []rule{
			checkRequiredFields,
			checkAmountIntegrity,
			checkLineItemMath,
			checkArithmetic,
		},
		warning: []rule{
			checkDataQuality,
			checkSubtotalConsistency,
			checkDiscountConsistency,
		},
		logger: logger,
	}
}

// Validate runs every rule against the candidate and returns the accumulated
// findings plus the resulting status. It is a pure function of the candidate
// and store state: running it twice yields identical output.
func (s *ValidationService) Validate(ctx context.Context, inv *models.Invoice, ownerID uuid.UUID) ([]models.Finding, []models.Finding, models.Status) {
	var errors, warnings []models.Finding

	for _, r := range s.blocking {
		errors = append(errors, r(inv)...)
	}
	if f := s.checkDuplicate(ctx, inv, ownerID); f != nil {
		errors = append(errors, *f)
	}
	for _, r := range s.warning {
		warnings = append(warnings, r(inv)...)
	}

	status := models.StatusPending
	if len(errors) > 0 {
		status = models.StatusReviewRequired
	}

	s.logger.Info("Validation completed",
		zap.Int("errors", len(errors)),
		zap.Int("warnings", len(warnings)),
		zap.String("status", string(status)),
	)

	return errors, warnings, status
}

// checkDuplicate queries the store for an existing record with the same
// (owner, vendor, invoice number) triple. Records owned by other tenants are
// never duplicates. A lookup failure is logged and skipped; the store
// constraint catches what the hint misses.
func (s *ValidationService) checkDuplicate(ctx context.Context, inv *models.Invoice, ownerID uuid.UUID) *models.Finding {
	if inv.VendorName == nil || inv.InvoiceNumber == nil {
		return nil
	}

	existing, err := s.dups.FindByNumber(ctx, ownerID, *inv.VendorName, *inv.InvoiceNumber)
	if err != nil {
		s.logger.Error("Duplicate lookup failed", zap.Error(err))
		return nil
	}
	if existing == nil {
		return nil
	}

	f := duplicateFinding(*inv.InvoiceNumber)
	return &f
}

func duplicateFinding(invoiceNumber string) models.Finding {
	return models.Finding{
		Field:    "invoice_number",
		Message:  fmt.Sprintf("Invoice number '%s' already exists for this vendor", invoiceNumber),
		Severity: models.SeverityError,
	}
}

func checkRequiredFields(inv *models.Invoice) []models.Finding {
	var findings []models.Finding

	if isBlankStr(inv.VendorName) {
		findings = append(findings, models.Finding{
			Field:    "vendor_name",
			Message:  "Vendor name is missing but required for processing",
			Severity: models.SeverityError,
		})
	}
	if isBlankStr(inv.InvoiceNumber) {
		findings = append(findings, models.Finding{
			Field:    "invoice_number",
			Message:  "Invoice number is missing but required for processing",
			Severity: models.SeverityError,
		})
	}

	return findings
}

func checkAmountIntegrity(inv *models.Invoice) []models.Finding {
	var findings []models.Finding

	if inv.TotalAmount == nil {
		findings = append(findings, models.Finding{
			Field:    "total_amount",
			Message:  "Total amount is missing - required for payment processing",
			Severity: models.SeverityError,
		})
	} else if *inv.TotalAmount <= 0 {
		findings = append(findings, models.Finding{
			Field:    "total_amount",
			Message:  fmt.Sprintf("Total amount must be positive, got %.2f", *inv.TotalAmount),
			Severity: models.SeverityError,
		})
	}

	if inv.Subtotal != nil && *inv.Subtotal < 0 {
		findings = append(findings, models.Finding{
			Field:    "subtotal",
			Message:  fmt.Sprintf("Subtotal is negative (%.2f) - likely extraction error", *inv.Subtotal),
			Severity: models.SeverityError,
		})
	}
	if inv.Tax != nil && *inv.Tax < 0 {
		findings = append(findings, models.Finding{
			Field:    "tax",
			Message:  fmt.Sprintf("Tax is negative (%.2f) - likely extraction error", *inv.Tax),
			Severity: models.SeverityError,
		})
	}

	return findings
}

// checkArithmetic validates subtotal - discount + tax = total within
// tolerance. It runs whenever subtotal, tax and total are all present; an
// absent discount counts as zero. Violations are reported, never silently
// corrected.
func checkArithmetic(inv *models.Invoice) []models.Finding {
	if inv.Subtotal == nil || inv.Tax == nil || inv.TotalAmount == nil {
		return nil
	}

	discount := 0.0
	if inv.DiscountAmount != nil {
		discount = *inv.DiscountAmount
	}

	calculated := *inv.Subtotal - discount + *inv.Tax
	difference := math.Abs(calculated - *inv.TotalAmount)
	if difference <= amountTolerance {
		return nil
	}

	return []models.Finding{{
		Field: "total_amount",
		Message: fmt.Sprintf(
			"Math error: Subtotal (%.2f) - Discount (%.2f) + Tax (%.2f) = %.2f, but Total is %.2f. Difference: %.2f",
			*inv.Subtotal, discount, *inv.Tax, calculated, *inv.TotalAmount, difference,
		),
		Severity: models.SeverityError,
	}}
}

func checkLineItemMath(inv *models.Invoice) []models.Finding {
	var findings []models.Finding

	for idx, item := range inv.LineItems {
		if item.Quantity == nil || item.UnitPrice == nil || item.Amount == nil {
			continue
		}
		expected := *item.Quantity * *item.UnitPrice
		difference := math.Abs(expected - *item.Amount)
		if difference <= amountTolerance {
			continue
		}

		name := item.ProductName
		if name == "" {
			name = fmt.Sprintf("Item #%d", idx+1)
		}
		findings = append(findings, models.Finding{
			Field: fmt.Sprintf("line_items[%d]", idx),
			Message: fmt.Sprintf(
				"%s: Qty (%g) x Price (%.2f) = %.2f, but Amount is %.2f",
				name, *item.Quantity, *item.UnitPrice, expected, *item.Amount,
			),
			Severity: models.SeverityError,
		})
	}

	return findings
}

func checkSubtotalConsistency(inv *models.Invoice) []models.Finding {
	if len(inv.LineItems) == 0 || inv.Subtotal == nil {
		return nil
	}

	sum := 0.0
	counted := 0
	for _, item := range inv.LineItems {
		if item.Amount != nil {
			sum += *item.Amount
			counted++
		}
	}
	if counted == 0 {
		return nil
	}

	difference := math.Abs(sum - *inv.Subtotal)
	if difference <= subtotalTolerance {
		return nil
	}

	return []models.Finding{{
		Field: "subtotal",
		Message: fmt.Sprintf(
			"Sum of line items (%.2f) doesn't match subtotal (%.2f). Difference: %.2f",
			sum, *inv.Subtotal, difference,
		),
		Severity: models.SeverityWarning,
	}}
}

func checkDiscountConsistency(inv *models.Invoice) []models.Finding {
	if inv.DiscountPercentage == nil || inv.DiscountAmount == nil || inv.Subtotal == nil {
		return nil
	}

	expected := *inv.Subtotal * *inv.DiscountPercentage / 100.0
	difference := math.Abs(expected - *inv.DiscountAmount)
	if difference <= amountTolerance {
		return nil
	}

	return []models.Finding{{
		Field: "discount_amount",
		Message: fmt.Sprintf(
			"Discount %g%% of %.2f = %.2f, but discount amount is %.2f",
			*inv.DiscountPercentage, *inv.Subtotal, expected, *inv.DiscountAmount,
		),
		Severity: models.SeverityWarning,
	}}
}

func checkDataQuality(inv *models.Invoice) []models.Finding {
	var findings []models.Finding

	if inv.Tax == nil {
		findings = append(findings, models.Finding{
			Field:    "tax",
			Message:  "Tax amount is missing - may affect tax reporting and reconciliation",
			Severity: models.SeverityWarning,
		})
	}
	if inv.InvoiceDate == nil {
		findings = append(findings, models.Finding{
			Field:    "invoice_date",
			Message:  "Invoice date is missing - may affect accounting period assignment",
			Severity: models.SeverityWarning,
		})
	}
	if isBlankStr(inv.Currency) {
		findings = append(findings, models.Finding{
			Field:    "currency",
			Message:  "Currency not detected - assuming default currency",
			Severity: models.SeverityWarning,
		})
	}
	if inv.TotalAmount != nil && *inv.TotalAmount > largeAmountThreshold {
		findings = append(findings, models.Finding{
			Field:    "total_amount",
			Message:  fmt.Sprintf("Unusually large amount (%.2f) - verify accuracy", *inv.TotalAmount),
			Severity: models.SeverityWarning,
		})
	}
	if len(inv.LineItems) == 0 {
		findings = append(findings, models.Finding{
			Field:    "line_items",
			Message:  "No line items extracted - product details may be missing from the invoice",
			Severity: models.SeverityWarning,
		})
	}

	return findings
}

func isBlankStr(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
