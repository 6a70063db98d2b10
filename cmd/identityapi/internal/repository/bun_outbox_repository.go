package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/models"
)

// maxErrorLength bounds the stored failure message.
const maxErrorLength = 1024

// DefaultMaxAttempts is how many failed deliveries an event gets before
// ListPending stops returning it.
const DefaultMaxAttempts = 10

// BunOutboxRepository implements OutboxRepository using Bun ORM
type BunOutboxRepository struct {
	db          *bun.DB
	maxAttempts int
}

// NewBunOutboxRepository creates an outbox repository. A non-positive
// maxAttempts uses DefaultMaxAttempts.
func NewBunOutboxRepository(db *bun.DB, maxAttempts int) *BunOutboxRepository {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &BunOutboxRepository{db: db, maxAttempts: maxAttempts}
}

// ListPending returns undelivered events that still have attempts left.
// Events that failed fewer times come first, then oldest first, so a
// repeatedly failing event does not hold back newer ones.
func (r *BunOutboxRepository) ListPending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	q := r.db.NewSelect().
		Model(&rows).
		Where("oe.dispatched_at IS NULL").
		Where("oe.attempts < ?", r.maxAttempts).
		Order("oe.attempts ASC", "oe.occurred_at ASC", "oe.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list pending outbox events: %w", err)
	}
	return rows, nil
}

func (r *BunOutboxRepository) MarkDispatched(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.NewUpdate().
		Model((*models.OutboxEvent)(nil)).
		Set("dispatched_at = ?", time.Now().UTC()).
		Set("attempts = attempts + 1").
		Where("id IN (?)", bun.In(ids)).
		Where("dispatched_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark outbox events dispatched: %w", err)
	}
	return nil
}

func (r *BunOutboxRepository) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	_, err := r.db.NewUpdate().
		Model((*models.OutboxEvent)(nil)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", msg).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}
	return nil
}
