// Package watcher reacts to receipt status changes. It drains the store's
// status-change events and fires the notifier exactly once per entry into
// Confirmed. It never mutates claim status itself.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pragyanlabs/receiptops/internal/models"
	"github.com/pragyanlabs/receiptops/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "receipt_notifications_total",
	Help: "Confirmation email attempts, labeled by outcome",
}, []string{"outcome"})

const (
	defaultPollInterval = 5 * time.Second
	drainBatchSize      = 32
)

// EventStore is the slice of the record store the watcher needs.
type EventStore interface {
	DequeueEvents(ctx context.Context, limit int) ([]models.ClaimEvent, error)
	GetClaim(ctx context.Context, id string) (*models.ReceiptClaim, error)
	RecordNotification(ctx context.Context, eventID int64, claimID string) error
}

// Notifier dispatches the verification email for a confirmed claim.
type Notifier interface {
	Send(ctx context.Context, claim *models.ReceiptClaim) error
}

// Waiter blocks until the store signals a status change or a timeout passes.
// Optional; without one the watcher runs on its poll interval alone.
type Waiter interface {
	Wait(ctx context.Context, timeout time.Duration) (bool, error)
}

// Watcher owns the confirmation loop.
type Watcher struct {
	store    EventStore
	notifier Notifier
	waiter   Waiter
	poll     time.Duration
}

func New(s EventStore, n Notifier, w Waiter, poll time.Duration) *Watcher {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Watcher{store: s, notifier: n, waiter: w, poll: poll}
}

// Run drains events until ctx is cancelled. Between drains it waits on the
// store's notification channel, falling back to the poll interval so events
// committed while the listener was detached are still picked up.
func (w *Watcher) Run(ctx context.Context) error {
	log.Printf("watcher: starting, poll interval %s", w.poll)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := w.drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("watcher: drain error: %v", err)
		}
		if n > 0 {
			// More may be queued behind the batch limit.
			continue
		}

		if w.waiter != nil {
			if _, err := w.waiter.Wait(ctx, w.poll); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("watcher: listener error, falling back to polling: %v", err)
				w.waiter = nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.poll):
		}
	}
}

// drain consumes one batch of pending events and returns how many it handled.
// A bad event is logged for operator attention and never blocks the rest of
// the batch.
func (w *Watcher) drain(ctx context.Context) (int, error) {
	events, err := w.store.DequeueEvents(ctx, drainBatchSize)
	if err != nil {
		return 0, err
	}
	for _, ev := range events {
		if err := w.handleEvent(ctx, ev); err != nil {
			log.Printf("watcher: event %d (claim %s): %v", ev.ID, ev.ClaimID, err)
		}
	}
	return len(events), nil
}

// handleEvent applies the transition guard and hands confirmed claims to the
// notifier. The notification is recorded against the event id before the
// send, so a re-delivered event can never produce a second email and a send
// failure is terminal for this attempt. Neither path touches claim status.
func (w *Watcher) handleEvent(ctx context.Context, ev models.ClaimEvent) error {
	if !ev.IsConfirmation() {
		return nil
	}

	claim, err := w.store.GetClaim(ctx, ev.ClaimID)
	if err != nil {
		notificationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("snapshot load failed: %w", err)
	}

	// Never guess values for the receipt email.
	if missing := missingFields(claim); missing != "" {
		notificationsTotal.WithLabelValues("incomplete").Inc()
		return fmt.Errorf("confirmed claim missing %s, notification withheld", missing)
	}

	err = w.store.RecordNotification(ctx, ev.ID, ev.ClaimID)
	if errors.Is(err, store.ErrAlreadyNotified) {
		return nil
	}
	if err != nil {
		notificationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("notification record failed: %w", err)
	}

	if err := w.notifier.Send(ctx, claim); err != nil {
		// Logged only. Confirmed status is authoritative regardless of the
		// email outcome, and there is no retry queue.
		notificationsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("email dispatch failed: %w", err)
	}

	notificationsTotal.WithLabelValues("sent").Inc()
	log.Printf("watcher: verification email sent for claim %s (ref %s)", claim.ID, claim.Reference)
	return nil
}

func missingFields(c *models.ReceiptClaim) string {
	switch {
	case c.ContributorEmail == "":
		return "contributor email"
	case c.ContributorName == "":
		return "contributor name"
	case c.Amount <= 0:
		return "amount"
	case c.Reference == "":
		return "reference"
	}
	return ""
}
