package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"invox/internal/models"
	"invox/internal/textract"
)

// Extraction patterns. Each field has its own parser; one field failing to
// parse never blocks the others, and an unparseable value is absent, not zero.
var (
	reInvoiceNumber = regexp.MustCompile(`(?i)invoice\s+(?:number|#|no\.?)[\s:]*([A-Za-z0-9-]+)`)
	reInvoiceDate   = regexp.MustCompile(`(?i)(?:invoice\s+date|date)[\s:]*([0-9]{4}-[0-9]{2}-[0-9]{2}|[0-9]{1,2}/[0-9]{1,2}/[0-9]{4}|[0-9]{4}/[0-9]{1,2}/[0-9]{1,2})`)
	reSubtotal      = regexp.MustCompile(`(?i)sub\s?total[\s:]+\$?([\d,]+\.\d{2})`)
	reTax           = regexp.MustCompile(`(?i)\btax\b[^:\n]*[\s:]+\$?([\d,]+\.\d{2})`)
	reTotal         = regexp.MustCompile(`(?i)(?:total\s+due|grand\s+total|amount\s+due)[\s:]+\$?([\d,]+\.\d{2})`)
	reTotalLine     = regexp.MustCompile(`(?im)^\s*total[\s:]+\$?([\d,]+\.\d{2})\s*$`)
	reCurrency      = regexp.MustCompile(`(?i)currency[\s:]*([A-Za-z]{3})\b`)
	reDiscount      = regexp.MustCompile(`(?i)discount(?:\s*\(?\s*([\d.]+)\s*%\s*\)?)?[\s:]+-?\s*\$?([\d,]+\.\d{2})`)
	reCGST          = regexp.MustCompile(`(?i)cgst\s*\(?\s*([\d.]+)\s*%\s*\)?[\s:]+\$?([\d,]+\.\d{2})`)
	reSGST          = regexp.MustCompile(`(?i)sgst\s*\(?\s*([\d.]+)\s*%\s*\)?[\s:]+\$?([\d,]+\.\d{2})`)

	// Vendor is matched per line: the company-suffix heuristic picks up the
	// first business name in the document, which sits above the "Bill To"
	// block on conventional invoice layouts.
	reVendor = regexp.MustCompile(`([A-Z][A-Za-z0-9 &,.'-]*?(?:Corporation|Corp\.?|Incorporated|Inc\.?|LLC|Ltd\.?|Limited|Company|Co\.))`)

	// Table rows of the form: name  qty [unit]  unit_price  amount
	reLineItem = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 &,.'/-]{2,}?)\s{2,}(\d+(?:\.\d+)?)\s*(?:hrs|hours|pcs|units|x)?\s+\$?([\d,]+\.\d{2})\s{2,}\$?([\d,]+\.\d{2})\s*$`)
)

var vendorStopWords = map[string]struct{}{
	"INVOICE":   {},
	"BILL":      {},
	"RECEIPT":   {},
	"STATEMENT": {},
}

var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
}

// ExtractionService parses raw document text into a typed invoice candidate.
// It never returns an error: malformed input degrades to absent fields and
// the validator decides materiality.
type ExtractionService struct {
	logger *zap.Logger
}

func NewExtractionService(logger *zap.Logger) *ExtractionService {
	return &ExtractionService{logger: logger}
}

// Parse extracts every invoice field independently from the raw text.
// Findings, status and owner are left for the validator and orchestrator.
func (s *ExtractionService) Parse(text textract.RawText) *models.Invoice {
	full := text.Full()

	inv := &models.Invoice{
		VendorName:    s.parseVendor(full),
		InvoiceNumber: s.parseInvoiceNumber(full),
		InvoiceDate:   s.parseDate(full),
		Currency:      s.parseCurrency(full),
		LineItems:     s.parseLineItems(full),
		Subtotal:      parseAmountMatch(reSubtotal, full),
		Tax:           s.parseTax(full),
		TotalAmount:   s.parseTotal(full),
	}

	inv.DiscountPercentage, inv.DiscountAmount = s.parseDiscount(full)
	inv.CGSTRate, inv.CGSTAmount = parseRateAmount(reCGST, full)
	inv.SGSTRate, inv.SGSTAmount = parseRateAmount(reSGST, full)

	// A GST invoice often carries no single tax line; the component amounts
	// stand in for it.
	if inv.Tax == nil && (inv.CGSTAmount != nil || inv.SGSTAmount != nil) {
		total := 0.0
		if inv.CGSTAmount != nil {
			total += *inv.CGSTAmount
		}
		if inv.SGSTAmount != nil {
			total += *inv.SGSTAmount
		}
		inv.Tax = &total
	}

	s.logger.Info("Field extraction completed",
		zap.Int("line_items", len(inv.LineItems)),
		zap.Bool("vendor_found", inv.VendorName != nil),
		zap.Bool("number_found", inv.InvoiceNumber != nil),
		zap.Bool("total_found", inv.TotalAmount != nil),
	)

	return inv
}

func (s *ExtractionService) parseVendor(text string) *string {
	for _, line := range strings.Split(text, "\n") {
		match := reVendor.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		vendor := strings.Join(strings.Fields(match[1]), " ")
		if _, stop := vendorStopWords[strings.ToUpper(vendor)]; stop {
			continue
		}
		return &vendor
	}
	return nil
}

func (s *ExtractionService) parseInvoiceNumber(text string) *string {
	match := reInvoiceNumber.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	number := strings.TrimSpace(match[1])
	if number == "" {
		return nil
	}
	return &number
}

func (s *ExtractionService) parseDate(text string) *time.Time {
	match := reInvoiceDate.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, match[1]); err == nil {
			return &d
		}
	}
	s.logger.Warn("Could not parse invoice date", zap.String("value", match[1]))
	return nil
}

func (s *ExtractionService) parseCurrency(text string) *string {
	if match := reCurrency.FindStringSubmatch(text); match != nil {
		code := strings.ToUpper(match[1])
		return &code
	}
	// Symbol fallback when no explicit currency line exists.
	if strings.Contains(text, "₹") || strings.Contains(text, "Rs.") {
		inr := "INR"
		return &inr
	}
	if strings.Contains(text, "$") {
		usd := "USD"
		return &usd
	}
	return nil
}

func (s *ExtractionService) parseTax(text string) *float64 {
	for _, line := range strings.Split(text, "\n") {
		// CGST/SGST components have their own parsers; the generic tax
		// pattern must not swallow them.
		if reCGST.MatchString(line) || reSGST.MatchString(line) {
			continue
		}
		if amount := parseAmountMatch(reTax, line); amount != nil {
			return amount
		}
	}
	return nil
}

func (s *ExtractionService) parseTotal(text string) *float64 {
	if amount := parseAmountMatch(reTotal, text); amount != nil {
		return amount
	}
	return parseAmountMatch(reTotalLine, text)
}

func (s *ExtractionService) parseDiscount(text string) (*float64, *float64) {
	match := reDiscount.FindStringSubmatch(text)
	if match == nil {
		return nil, nil
	}
	var percentage *float64
	if match[1] != "" {
		percentage = parseAmount(match[1])
	}
	return percentage, parseAmount(match[2])
}

func (s *ExtractionService) parseLineItems(text string) []models.LineItem {
	var items []models.LineItem
	for _, line := range strings.Split(text, "\n") {
		match := reLineItem.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		items = append(items, models.LineItem{
			ProductName: strings.TrimSpace(match[1]),
			Quantity:    parseAmount(match[2]),
			UnitPrice:   parseAmount(match[3]),
			Amount:      parseAmount(match[4]),
		})
	}
	return items
}

func parseRateAmount(re *regexp.Regexp, text string) (*float64, *float64) {
	match := re.FindStringSubmatch(text)
	if match == nil {
		return nil, nil
	}
	return parseAmount(match[1]), parseAmount(match[2])
}

func parseAmountMatch(re *regexp.Regexp, text string) *float64 {
	match := re.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	return parseAmount(match[1])
}

// parseAmount parses a monetary value tolerating currency symbols and
// thousands separators. Anything that still fails to parse is absent.
func parseAmount(value string) *float64 {
	cleaned := strings.NewReplacer("$", "", "₹", "", ",", "", " ", "").Replace(value)
	if cleaned == "" {
		return nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &f
}
