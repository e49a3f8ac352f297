package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"invox/internal/models"
)

// ErrDuplicate is returned when an insert violates the invoices uniqueness
// constraint on (owner_id, vendor_name, invoice_number). The constraint, not
// the validator's pre-check, is the source of truth for duplicates.
var ErrDuplicate = errors.New("invoice already exists for this owner, vendor and number")

const pgUniqueViolation = "23505"

var invoiceColumns = []string{
	"id", "owner_id", "vendor_name", "invoice_number", "invoice_date", "currency",
	"line_items", "subtotal", "discount_percentage", "discount_amount",
	"cgst_rate", "cgst_amount", "sgst_rate", "sgst_amount", "tax", "total_amount",
	"status", "validation_errors", "validation_warnings", "created_at",
}

type InvoiceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewInvoiceRepository(db *pgxpool.Pool, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Insert writes the fully validated record in one atomic statement: findings
// and status land together with the data, so a row never exists
// half-validated.
func (r *InvoiceRepository) Insert(ctx context.Context, inv *models.Invoice) error {
	lineItems, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("failed to encode line items: %w", err)
	}
	validationErrors, err := json.Marshal(inv.ValidationErrors)
	if err != nil {
		return fmt.Errorf("failed to encode validation errors: %w", err)
	}
	validationWarnings, err := json.Marshal(inv.ValidationWarnings)
	if err != nil {
		return fmt.Errorf("failed to encode validation warnings: %w", err)
	}

	query := squirrel.Insert("invoices").
		Columns(invoiceColumns...).
		Values(
			inv.ID, inv.OwnerID, inv.VendorName, inv.InvoiceNumber, inv.InvoiceDate, inv.Currency,
			lineItems, inv.Subtotal, inv.DiscountPercentage, inv.DiscountAmount,
			inv.CGSTRate, inv.CGSTAmount, inv.SGSTRate, inv.SGSTAmount, inv.Tax, inv.TotalAmount,
			inv.Status, validationErrors, validationWarnings, inv.CreatedAt,
		).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID fetches a record scoped to its owner. A record owned by a
// different tenant is indistinguishable from a missing one.
func (r *InvoiceRepository) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*models.Invoice, error) {
	query := squirrel.Select(invoiceColumns...).
		From("invoices").
		Where(squirrel.Eq{"id": id, "owner_id": ownerID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	inv, err := scanInvoice(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

// FindByNumber looks up an existing record with the same duplicate triple,
// scoped to the owner. Used by the validator as the duplicate pre-check.
func (r *InvoiceRepository) FindByNumber(ctx context.Context, ownerID uuid.UUID, vendor, number string) (*models.Invoice, error) {
	query := squirrel.Select(invoiceColumns...).
		From("invoices").
		Where(squirrel.Eq{"owner_id": ownerID, "vendor_name": vendor, "invoice_number": number}).
		OrderBy("created_at ASC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	inv, err := scanInvoice(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

// List returns the owner's records, newest first, optionally filtered by
// status.
func (r *InvoiceRepository) List(ctx context.Context, ownerID uuid.UUID, status *models.Status, limit, offset int) ([]*models.Invoice, error) {
	query := squirrel.Select(invoiceColumns...).
		From("invoices").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar)

	if status != nil {
		query = query.Where(squirrel.Eq{"status": *status})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit)).Offset(uint64(offset))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// Delete removes the owner's record and reports whether a row was deleted.
func (r *InvoiceRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) (bool, error) {
	query := squirrel.Delete("invoices").
		Where(squirrel.Eq{"id": id, "owner_id": ownerID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStatus is a compare-and-swap on the status column. It only succeeds
// when the row still holds the expected current status, which makes the
// APPROVED terminal state enforceable without explicit locking.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id, ownerID uuid.UUID, from, to models.Status) (bool, error) {
	query := squirrel.Update("invoices").
		Set("status", to).
		Where(squirrel.Eq{"id": id, "owner_id": ownerID, "status": from}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var (
		inv                models.Invoice
		lineItems          []byte
		validationErrors   []byte
		validationWarnings []byte
	)

	err := row.Scan(
		&inv.ID, &inv.OwnerID, &inv.VendorName, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.Currency,
		&lineItems, &inv.Subtotal, &inv.DiscountPercentage, &inv.DiscountAmount,
		&inv.CGSTRate, &inv.CGSTAmount, &inv.SGSTRate, &inv.SGSTAmount, &inv.Tax, &inv.TotalAmount,
		&inv.Status, &validationErrors, &validationWarnings, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(lineItems, &inv.LineItems); err != nil {
		return nil, fmt.Errorf("failed to decode line items: %w", err)
	}
	if err := json.Unmarshal(validationErrors, &inv.ValidationErrors); err != nil {
		return nil, fmt.Errorf("failed to decode validation errors: %w", err)
	}
	if err := json.Unmarshal(validationWarnings, &inv.ValidationWarnings); err != nil {
		return nil, fmt.Errorf("failed to decode validation warnings: %w", err)
	}

	return &inv, nil
}
