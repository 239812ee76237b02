package models

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Status is the review state of a receipt claim.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusRejected  Status = "Rejected"
)

// Valid reports whether s is one of the known review states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether the operator state machine permits
// moving from s to next. Pending is the only non-terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusConfirmed || next == StatusRejected
}

// Amount is a contribution amount in rupees. It unmarshals from either a
// JSON number or a numeric string, because the public form submits both.
type Amount float64

func (a Amount) String() string {
	return strconv.FormatFloat(float64(a), 'f', 2, 64)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", data)
	}
	*a = Amount(f)
	return nil
}

// ReceiptClaim is a contributor's self-reported payment, stored for manual
// review. JSON field names are load-bearing: the review dashboard reads
// contributorName/contributorEmail/upiRefNumber/amount/status/timestamp and
// must keep rendering across deploys.
type ReceiptClaim struct {
	ID               string    `json:"id"`
	ContributorName  string    `json:"contributorName"`
	ContributorEmail string    `json:"contributorEmail"`
	ContributorPhone string    `json:"contributorPhone"`
	Amount           Amount    `json:"amount"`
	Reference        string    `json:"upiRefNumber"`
	Status           Status    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
}

// ClaimEvent is one observed status change on a claim: a before/after
// snapshot pair recorded by the store at commit time.
type ClaimEvent struct {
	ID         int64     `json:"id"`
	ClaimID    string    `json:"claimId"`
	Before     Status    `json:"before"`
	After      Status    `json:"after"`
	OccurredAt time.Time `json:"occurredAt"`
}

// IsConfirmation reports whether this event is an entry into Confirmed.
// Edits to unrelated fields and Confirmed-to-Confirmed rewrites never
// satisfy this guard.
func (e ClaimEvent) IsConfirmation() bool {
	return e.After == StatusConfirmed && e.Before != StatusConfirmed
}

// SubmitReceiptRequest is the payload from the contribution form.
type SubmitReceiptRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Amount    Amount `json:"amount"`
	Reference string `json:"reference"`
}

// SubmitReceiptResponse carries the provisional receipt id back to the
// contributor. The verified receipt arrives later by email.
type SubmitReceiptResponse struct {
	ReceiptID string `json:"receiptId"`
	Message   string `json:"message"`
}

// UpdateStatusRequest is the operator's status-flip payload.
type UpdateStatusRequest struct {
	Status Status `json:"status"`
}
