// Package validate checks contributor-supplied submission fields. These are
// sanity filters, not verification against any payment rail.
package validate

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/pragyanlabs/receiptops/internal/models"
)

// MinReferenceLength matches the shortest UTR the payment form accepts.
const MinReferenceLength = 12

// Error is a rejected-field error. Handlers map it to a 400 response.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Name requires a non-empty contributor name.
func Name(name string) error {
	if strings.TrimSpace(name) == "" {
		return &Error{Field: "name", Reason: "required"}
	}
	return nil
}

// Email requires a deliverable-looking address.
func Email(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &Error{Field: "email", Reason: "required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &Error{Field: "email", Reason: "not a deliverable address"}
	}
	return nil
}

// Phone requires a non-empty contact number.
func Phone(phone string) error {
	if strings.TrimSpace(phone) == "" {
		return &Error{Field: "phone", Reason: "required"}
	}
	return nil
}

// Amount requires a positive contribution amount.
func Amount(a models.Amount) error {
	if a <= 0 {
		return &Error{Field: "amount", Reason: "must be a positive number"}
	}
	return nil
}

// Reference requires a trimmed UTR of at least MinReferenceLength characters.
func Reference(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return &Error{Field: "reference", Reason: "required"}
	}
	if len(ref) < MinReferenceLength {
		return &Error{Field: "reference", Reason: fmt.Sprintf("must be at least %d characters", MinReferenceLength)}
	}
	return nil
}

// Submission validates every field of a receipt submission, returning the
// first failure.
func Submission(req models.SubmitReceiptRequest) error {
	checks := []func() error{
		func() error { return Name(req.Name) },
		func() error { return Email(req.Email) },
		func() error { return Phone(req.Phone) },
		func() error { return Amount(req.Amount) },
		func() error { return Reference(req.Reference) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
