package service

import (
	"errors"
	"fmt"
	"strings"

	"invox/internal/models"
)

var (
	// ErrNotFound is returned uniformly whether a record does not exist or
	// belongs to another owner, so existence is never revealed across tenants.
	ErrNotFound = errors.New("invoice not found")

	// ErrPreconditionFailed means a record with blocking findings was sent
	// for approval. User-actionable, not a system failure.
	ErrPreconditionFailed = errors.New("blocking findings must be resolved before approval")

	// ErrAlreadyTerminal means the record is APPROVED and can no longer change.
	ErrAlreadyTerminal = errors.New("invoice is already approved")
)

// ApprovalBlockedError carries the blocking findings that keep a record out
// of the PENDING state, so a rejected approval can tell the caller exactly
// what remains to be fixed.
type ApprovalBlockedError struct {
	Findings []models.Finding
}

func (e *ApprovalBlockedError) Error() string {
	fields := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		fields = append(fields, f.Field)
	}
	return fmt.Sprintf("%v: %s", ErrPreconditionFailed, strings.Join(fields, ", "))
}

func (e *ApprovalBlockedError) Unwrap() error {
	return ErrPreconditionFailed
}

// Workflow is the approval state machine. Intake assigns PENDING or
// REVIEW_REQUIRED; the only transition after that is PENDING -> APPROVED.
// REVIEW_REQUIRED never auto-promotes - a fresh upload is the only way back.
type Workflow struct{}

// InitialStatus is the intake assignment: any blocking finding forces review.
func (Workflow) InitialStatus(blocking []models.Finding) models.Status {
	if len(blocking) > 0 {
		return models.StatusReviewRequired
	}
	return models.StatusPending
}

// CheckApprove reports whether the record may move to APPROVED from its
// current state.
func (Workflow) CheckApprove(inv *models.Invoice) error {
	switch inv.Status {
	case models.StatusPending:
		return nil
	case models.StatusReviewRequired:
		return &ApprovalBlockedError{Findings: inv.ValidationErrors}
	case models.StatusApproved:
		return ErrAlreadyTerminal
	default:
		return fmt.Errorf("unknown invoice status %q", inv.Status)
	}
}
