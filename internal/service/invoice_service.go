package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invox/internal/models"
	"invox/internal/repository"
	"invox/internal/textract"
)

// TextExtractor produces raw text from document bytes. Satisfied by
// *textract.Extractor.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mediaType string) (textract.RawText, error)
}

// InvoiceStore is the persistence surface the pipeline needs. Satisfied by
// *repository.InvoiceRepository.
type InvoiceStore interface {
	Insert(ctx context.Context, inv *models.Invoice) error
	GetByID(ctx context.Context, id, ownerID uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, ownerID uuid.UUID, status *models.Status, limit, offset int) ([]*models.Invoice, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id, ownerID uuid.UUID, from, to models.Status) (bool, error)
}

// InvoiceService runs the intake pipeline and the approval/delete lifecycle.
// Every operation is scoped to the authenticated owner; the service trusts
// the resolved owner ID completely and does no credential parsing.
type InvoiceService struct {
	extractor  TextExtractor
	extraction *ExtractionService
	validation *ValidationService
	workflow   Workflow
	store      InvoiceStore
	logger     *zap.Logger
}

func NewInvoiceService(
	extractor TextExtractor,
	extraction *ExtractionService,
	validation *ValidationService,
	store InvoiceStore,
	logger *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		extractor:  extractor,
		extraction: extraction,
		validation: validation,
		store:      store,
		logger:     logger,
	}
}

// Ingest runs the full pipeline for one uploaded document: text extraction,
// field extraction, validation, then a single atomic insert. Extraction
// problems become findings on the record; only the media-type gate and store
// faults abort the request.
func (s *InvoiceService) Ingest(ctx context.Context, ownerID uuid.UUID, data []byte, mediaType string) (*models.Invoice, error) {
	text, err := s.extractor.Extract(ctx, data, mediaType)
	if err != nil {
		return nil, err
	}

	inv := s.extraction.Parse(text)
	inv.ID = uuid.New()
	inv.OwnerID = ownerID
	inv.CreatedAt = time.Now().UTC()

	findingsErr, findingsWarn, status := s.validation.Validate(ctx, inv, ownerID)
	inv.ValidationErrors = findingsErr
	inv.ValidationWarnings = findingsWarn
	inv.Status = status

	if err := s.store.Insert(ctx, inv); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("failed to persist invoice: %w", err)
		}

		// Two concurrent uploads can both pass the point-in-time duplicate
		// pre-check; the constraint catches the loser here. The conflict is
		// data, not a fault: record it as the duplicate finding and persist
		// the record for review.
		s.logger.Info("Insert hit uniqueness constraint, recording duplicate finding",
			zap.String("invoice_id", inv.ID.String()),
		)
		if inv.InvoiceNumber != nil {
			inv.ValidationErrors = append(inv.ValidationErrors, duplicateFinding(*inv.InvoiceNumber))
		}
		inv.Status = models.StatusReviewRequired
		if err := s.store.Insert(ctx, inv); err != nil {
			return nil, fmt.Errorf("failed to persist duplicate invoice: %w", err)
		}
	}

	s.logger.Info("Invoice ingested",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.String("status", string(inv.Status)),
		zap.Int("errors", len(inv.ValidationErrors)),
		zap.Int("warnings", len(inv.ValidationWarnings)),
	)

	return inv, nil
}

// Approve moves a PENDING record to the terminal APPROVED state. The status
// swap is a store-level compare-and-swap, so two racing approvals cannot both
// succeed.
func (s *InvoiceService) Approve(ctx context.Context, id, ownerID uuid.UUID) (*models.Invoice, error) {
	inv, err := s.store.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, ErrNotFound
	}

	if err := s.workflow.CheckApprove(inv); err != nil {
		return nil, err
	}

	ok, err := s.store.UpdateStatus(ctx, id, ownerID, models.StatusPending, models.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice status: %w", err)
	}
	if !ok {
		// Lost a race: re-read and report the real state.
		fresh, err := s.store.GetByID(ctx, id, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload invoice: %w", err)
		}
		if fresh == nil {
			return nil, ErrNotFound
		}
		if err := s.workflow.CheckApprove(fresh); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("invoice %s changed concurrently", id)
	}

	inv.Status = models.StatusApproved
	s.logger.Info("Invoice approved",
		zap.String("invoice_id", id.String()),
		zap.String("owner_id", ownerID.String()),
	)
	return inv, nil
}

// Delete removes the owner's record from any state. Deleting a missing (or
// foreign) record is NotFound, never an existence leak.
func (s *InvoiceService) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	ok, err := s.store.Delete(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	s.logger.Info("Invoice deleted",
		zap.String("invoice_id", id.String()),
		zap.String("owner_id", ownerID.String()),
	)
	return nil
}

// Get returns one of the owner's records.
func (s *InvoiceService) Get(ctx context.Context, id, ownerID uuid.UUID) (*models.Invoice, error) {
	inv, err := s.store.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	return inv, nil
}

// List returns the owner's records, optionally filtered by status.
func (s *InvoiceService) List(ctx context.Context, ownerID uuid.UUID, status *models.Status, limit, offset int) ([]*models.Invoice, error) {
	return s.store.List(ctx, ownerID, status, limit, offset)
}
