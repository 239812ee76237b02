package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pragyanlabs/receiptops/internal/models"
)

var (
	ErrDuplicateReference = errors.New("reference already claimed")
	ErrClaimNotFound      = errors.New("claim not found")
	ErrInvalidTransition  = errors.New("status transition not permitted")
	ErrAlreadyNotified    = errors.New("notification already recorded for event")
)

const uniqueViolation = "23505"

// Store persists receipt claims and reference reservations for one
// application namespace.
type Store struct {
	Db    *pgxpool.Pool
	AppID string
}

func NewStore(connString, appID string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool, AppID: appID}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

// ReferenceExists reports whether a reservation already holds the reference.
// This reads the authoritative reservation table, never a cache.
func (s *Store) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := s.Db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM reference_reservations WHERE app_id = $1 AND reference = $2)",
		s.AppID, reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("reference lookup failed: %w", err)
	}
	return exists, nil
}

// CreateClaim persists a new Pending claim together with its reference
// reservation in one transaction. The UNIQUE(app_id, reference) constraint on
// the reservation table is the serialization point: when two submissions race
// on the same reference, the loser's INSERT fails with a unique violation and
// the whole transaction, claim included, rolls back.
func (s *Store) CreateClaim(ctx context.Context, claim *models.ReceiptClaim) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO receipt_claims
		   (app_id, contributor_name, contributor_email, contributor_phone, amount, reference, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		s.AppID, claim.ContributorName, claim.ContributorEmail, claim.ContributorPhone,
		claim.Amount.String(), claim.Reference, models.StatusPending,
	).Scan(&claim.ID, &claim.Timestamp)
	if err != nil {
		return fmt.Errorf("claim insert failed: %w", err)
	}
	claim.Status = models.StatusPending

	_, err = tx.Exec(ctx,
		"INSERT INTO reference_reservations (app_id, reference) VALUES ($1, $2)",
		s.AppID, claim.Reference)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateReference
		}
		return fmt.Errorf("reference reservation failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// GetClaim retrieves a single claim by id.
func (s *Store) GetClaim(ctx context.Context, id string) (*models.ReceiptClaim, error) {
	var c models.ReceiptClaim
	var amount string
	err := s.Db.QueryRow(ctx,
		`SELECT id, contributor_name, contributor_email, contributor_phone, amount::text, reference, status, created_at
		   FROM receipt_claims WHERE app_id = $1 AND id = $2`,
		s.AppID, id,
	).Scan(&c.ID, &c.ContributorName, &c.ContributorEmail, &c.ContributorPhone,
		&amount, &c.Reference, &c.Status, &c.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClaimNotFound
		}
		return nil, fmt.Errorf("claim lookup failed: %w", err)
	}
	if err := c.Amount.UnmarshalJSON([]byte(amount)); err != nil {
		return nil, fmt.Errorf("stored amount unreadable: %w", err)
	}
	return &c, nil
}

// ListClaims returns the newest claims in the namespace for the review
// dashboard.
func (s *Store) ListClaims(ctx context.Context, limit int) ([]models.ReceiptClaim, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT id, contributor_name, contributor_email, contributor_phone, amount::text, reference, status, created_at
		   FROM receipt_claims WHERE app_id = $1 ORDER BY created_at DESC LIMIT $2`,
		s.AppID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim list failed: %w", err)
	}
	defer rows.Close()

	var claims []models.ReceiptClaim
	for rows.Next() {
		var c models.ReceiptClaim
		var amount string
		if err := rows.Scan(&c.ID, &c.ContributorName, &c.ContributorEmail, &c.ContributorPhone,
			&amount, &c.Reference, &c.Status, &c.Timestamp); err != nil {
			log.Printf("store: error scanning claim: %v", err)
			continue
		}
		if err := c.Amount.UnmarshalJSON([]byte(amount)); err != nil {
			log.Printf("store: stored amount unreadable for %s: %v", c.ID, err)
			continue
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// UpdateStatus performs a guarded operator transition. The WHERE clause only
// matches claims still in Pending, so Confirmed and Rejected stay terminal at
// this surface no matter how the request races. The status-change trigger
// records the before/after snapshot for the confirmation watcher.
func (s *Store) UpdateStatus(ctx context.Context, id string, next models.Status) (*models.ReceiptClaim, error) {
	if !models.StatusPending.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}

	tag, err := s.Db.Exec(ctx,
		"UPDATE receipt_claims SET status = $1 WHERE app_id = $2 AND id = $3 AND status = $4",
		next, s.AppID, id, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("status update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the claim does not exist or it already left Pending.
		if _, err := s.GetClaim(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}
	return s.GetClaim(ctx, id)
}

// DequeueEvents claims a batch of unprocessed status-change events. SKIP
// LOCKED lets multiple watchers drain the queue without handing the same
// event to two of them, and marking processed_at in the same statement means
// an event is consumed at most once.
func (s *Store) DequeueEvents(ctx context.Context, limit int) ([]models.ClaimEvent, error) {
	rows, err := s.Db.Query(ctx,
		`UPDATE claim_events SET processed_at = now()
		  WHERE id IN (
		        SELECT id FROM claim_events
		         WHERE app_id = $1 AND processed_at IS NULL
		         ORDER BY id
		         LIMIT $2
		         FOR UPDATE SKIP LOCKED)
		  RETURNING id, claim_id, before_status, after_status, occurred_at`,
		s.AppID, limit)
	if err != nil {
		return nil, fmt.Errorf("event dequeue failed: %w", err)
	}
	defer rows.Close()

	var events []models.ClaimEvent
	for rows.Next() {
		var ev models.ClaimEvent
		if err := rows.Scan(&ev.ID, &ev.ClaimID, &ev.Before, &ev.After, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("event scan failed: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecordNotification durably records that event eventID produced an email.
// The primary key on event_id turns a re-delivered event into
// ErrAlreadyNotified instead of a second send.
func (s *Store) RecordNotification(ctx context.Context, eventID int64, claimID string) error {
	_, err := s.Db.Exec(ctx,
		"INSERT INTO claim_notifications (event_id, claim_id) VALUES ($1, $2)",
		eventID, claimID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyNotified
		}
		return fmt.Errorf("notification record failed: %w", err)
	}
	return nil
}

// EventListener holds a dedicated connection subscribed to the status-change
// channel so the watcher wakes promptly instead of waiting out a poll tick.
type EventListener struct {
	conn *pgx.Conn
}

func NewEventListener(ctx context.Context, connString string) (*EventListener, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("listener connect failed: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN receipt_events"); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("listen failed: %w", err)
	}
	return &EventListener{conn: conn}, nil
}

// Wait blocks until a status-change notification arrives or the timeout
// elapses. It returns true when woken by a notification. A timeout is not an
// error; the caller polls anyway, which also covers notifications delivered
// while the watcher was busy draining.
func (l *EventListener) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := l.conn.WaitForNotification(waitCtx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		return false, fmt.Errorf("notification wait failed: %w", err)
	}
	return true, nil
}

func (l *EventListener) Close(ctx context.Context) error {
	return l.conn.Close(ctx)
}
