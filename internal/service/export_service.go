package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"invox/internal/models"
)

const exportSheetName = "Invoices"

var exportHeader = []string{
	"ID", "Vendor Name", "Invoice Number", "Invoice Date",
	"Subtotal", "Discount %", "Discount Amount",
	"CGST Rate %", "CGST Amount", "SGST Rate %", "SGST Amount",
	"Total Tax", "Grand Total", "Currency",
	"Valid", "Status", "Created At",
}

// ExportService renders persisted, already-validated records into
// accountant-facing tabular files. It only sees complete rows: all numeric
// invariants were checked before the records were written.
type ExportService struct {
	logger *zap.Logger
}

func NewExportService(logger *zap.Logger) *ExportService {
	return &ExportService{logger: logger}
}

// ExportCSV renders the records as UTF-8 CSV.
func (s *ExportService) ExportCSV(invoices []*models.Invoice) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, inv := range invoices {
		if err := w.Write(exportRow(inv)); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	s.logger.Info("CSV export generated", zap.Int("rows", len(invoices)))
	return buf.Bytes(), nil
}

// ExportXLSX renders the records as an .xlsx workbook.
func (s *ExportService) ExportXLSX(invoices []*models.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}

	for i, inv := range invoices {
		row := exportRow(inv)
		cells := make([]interface{}, len(row))
		for j, c := range row {
			cells[j] = c
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheetName, cell, &cells); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("XLSX export generated", zap.Int("rows", len(invoices)))
	return buf.Bytes(), nil
}

// Filename returns a timestamped export filename for the given format.
func (s *ExportService) Filename(format string) string {
	return fmt.Sprintf("invoices_export_%s.%s", time.Now().Format("2006-01-02"), format)
}

// ContentType returns the MIME type for the given export format.
func (s *ExportService) ContentType(format string) string {
	if format == "xlsx" {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func exportRow(inv *models.Invoice) []string {
	valid := "No"
	if inv.IsValid() {
		valid = "Yes"
	}
	return []string{
		inv.ID.String(),
		strOrEmpty(inv.VendorName),
		strOrEmpty(inv.InvoiceNumber),
		dateOrEmpty(inv.InvoiceDate),
		numOrEmpty(inv.Subtotal),
		numOrEmpty(inv.DiscountPercentage),
		numOrEmpty(inv.DiscountAmount),
		numOrEmpty(inv.CGSTRate),
		numOrEmpty(inv.CGSTAmount),
		numOrEmpty(inv.SGSTRate),
		numOrEmpty(inv.SGSTAmount),
		numOrEmpty(inv.Tax),
		numOrEmpty(inv.TotalAmount),
		strOrEmpty(inv.Currency),
		valid,
		string(inv.Status),
		inv.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func numOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func dateOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
