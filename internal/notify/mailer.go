// Package notify dispatches the one verification email a confirmed claim is
// entitled to. Delivery is best effort: the claim's Confirmed status stands
// whatever the mail transport does.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/pragyanlabs/receiptops/internal/models"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ErrNotConfigured is returned when no SendGrid API key was supplied at
// startup. Sends are skipped, never queued.
var ErrNotConfigured = errors.New("mail transport not configured")

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Mailer sends verification emails through SendGrid from a fixed,
// pre-verified sender identity. The sender is startup configuration, never a
// per-request input.
type Mailer struct {
	client     sendClient
	senderName string
	senderAddr string
}

func NewMailer(apiKey, senderName, senderAddr string) *Mailer {
	m := &Mailer{senderName: senderName, senderAddr: senderAddr}
	if apiKey != "" {
		m.client = sendgrid.NewSendClient(apiKey)
	}
	return m
}

// Send emails the contributor their verified receipt. The body carries the
// claimed amount, the payment reference, and the address the receipt was
// issued to. There is no retry here; a failed send is terminal for this
// attempt.
func (m *Mailer) Send(ctx context.Context, claim *models.ReceiptClaim) error {
	if m.client == nil {
		return ErrNotConfigured
	}

	from := mail.NewEmail(m.senderName, m.senderAddr)
	to := mail.NewEmail(claim.ContributorName, claim.ContributorEmail)
	subject := fmt.Sprintf("Pragyan AI Contribution Verified - Txn ID %s", claim.Reference)

	plain := fmt.Sprintf(
		"Thank you for your contribution of Rs.%s to the Pragyan AI open-source project.\n"+
			"Your payment with reference %s has been verified.\n"+
			"This receipt was issued to %s.",
		claim.Amount, claim.Reference, claim.ContributorEmail)
	html := fmt.Sprintf(
		"<p>Thank you for your generous contribution of <strong>&#8377;%s</strong> to the Pragyan AI open-source project.</p>"+
			"<p>Your payment with reference <strong>%s</strong> has been verified.</p>"+
			"<p>This receipt was issued to %s.</p>",
		claim.Amount, claim.Reference, claim.ContributorEmail)

	msg := mail.NewSingleEmail(from, subject, to, plain, html)

	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid dispatch failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid rejected send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
