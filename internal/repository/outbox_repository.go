package repository

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// outboxRepository implements the OutboxRepository interface using PostgreSQL.
type outboxRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOutboxRepository creates a new PostgreSQL-backed notification outbox.
func NewOutboxRepository(pool *pgxpool.Pool, logger zerolog.Logger) OutboxRepository {
	return &outboxRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "outbox").Logger(),
	}
}

// Enqueue inserts pending notifications.
func (r *outboxRepository) Enqueue(ctx context.Context, notifications []model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	query := `
		INSERT INTO notifications (
			id, channel, kind, recipient, subject, body, attachment_key, attachment_name, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9)
	`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, n := range notifications {
		created := n.CreatedAt
		if created.IsZero() {
			created = now
		}
		batch.Queue(query, n.ID, n.Channel, n.Kind, n.Recipient, n.Subject, n.Body, n.AttachmentKey, n.AttachmentName, created)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, n := range notifications {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().Err(err).Str("kind", n.Kind).Msg("failed to enqueue notification")
			return fmt.Errorf("failed to enqueue notification: %w", err)
		}
	}

	r.logger.Debug().Int("count", len(notifications)).Msg("notifications enqueued")
	return nil
}

// PullPending returns pending notifications, oldest first.
func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, channel, kind, recipient, subject, body, attachment_key, attachment_name,
		       attempts, status, last_error, created_at, sent_at
		FROM notifications
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pull pending notifications: %w", err)
	}

	notifications, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Notification])
	if err != nil {
		return nil, fmt.Errorf("failed to scan notifications: %w", err)
	}
	return notifications, nil
}

// MarkSent marks a notification delivered.
func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	nid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid notification id %q: %w", id, err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'sent', attempts = attempts + 1, sent_at = $2, last_error = NULL
		WHERE id = $1
	`, nid, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s not found", id)
	}
	return nil
}

// MarkFailed marks a notification as exhausted.
func (r *outboxRepository) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	nid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid notification id %q: %w", id, err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'failed', attempts = $2, last_error = $3
		WHERE id = $1
	`, nid, attempts, lastErr)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s not found", id)
	}
	return nil
}

// Stats counts notifications by status.
func (r *outboxRepository) Stats(ctx context.Context) (model.OutboxStats, error) {
	var stats model.OutboxStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM notifications
	`).Scan(&stats.Pending, &stats.Sent, &stats.Failed)
	if err != nil {
		return model.OutboxStats{}, fmt.Errorf("failed to query outbox stats: %w", err)
	}
	return stats, nil
}
