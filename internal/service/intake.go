// Package service holds the intake workflow that turns a contributor's
// submission into a durable, uniquely-referenced receipt claim.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pragyanlabs/receiptops/internal/models"
	"github.com/pragyanlabs/receiptops/internal/store"
	"github.com/pragyanlabs/receiptops/internal/validate"
)

// DuplicateReferenceError rejects a submission whose payment reference is
// already claimed. The offending reference is part of the contract: the
// contributor-facing message must name it.
type DuplicateReferenceError struct {
	Reference string
}

func (e *DuplicateReferenceError) Error() string {
	return fmt.Sprintf("the transaction reference %s has already been submitted", e.Reference)
}

// ClaimStore is the slice of the record store the intake path needs.
type ClaimStore interface {
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	CreateClaim(ctx context.Context, claim *models.ReceiptClaim) error
}

// Intake validates and persists receipt submissions.
type Intake struct {
	store ClaimStore
}

func NewIntake(s ClaimStore) *Intake {
	return &Intake{store: s}
}

// ProcessSubmission runs the intake contract: validate, check the reference
// against the reservation set, persist claim and reservation together, and
// hand back the provisional receipt id. No email is sent from this path.
//
// A transient failure of the uniqueness read aborts the submission rather
// than risking a blind write; the caller may safely retry because a replayed
// reference is caught by the same check.
func (s *Intake) ProcessSubmission(ctx context.Context, req models.SubmitReceiptRequest) (*models.SubmitReceiptResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Reference = strings.TrimSpace(req.Reference)

	if err := validate.Submission(req); err != nil {
		return nil, err
	}

	exists, err := s.store.ReferenceExists(ctx, req.Reference)
	if err != nil {
		return nil, fmt.Errorf("uniqueness check failed: %w", err)
	}
	if exists {
		return nil, &DuplicateReferenceError{Reference: req.Reference}
	}

	claim := &models.ReceiptClaim{
		ContributorName:  req.Name,
		ContributorEmail: req.Email,
		ContributorPhone: req.Phone,
		Amount:           req.Amount,
		Reference:        req.Reference,
	}

	if err := s.store.CreateClaim(ctx, claim); err != nil {
		// Lost the race between the existence check and the reservation
		// insert. The constraint rolled the claim back, so the outcome is
		// identical to failing the check up front.
		if errors.Is(err, store.ErrDuplicateReference) {
			return nil, &DuplicateReferenceError{Reference: req.Reference}
		}
		return nil, fmt.Errorf("claim persistence failed: %w", err)
	}

	return &models.SubmitReceiptResponse{
		ReceiptID: claim.ID,
		Message:   "Submission successful! Your verified receipt will be emailed after review.",
	}, nil
}
