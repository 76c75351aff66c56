package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/obiefoma/slotbook/libs/db"
	"github.com/obiefoma/slotbook/services/notification-service/internal/inbox"
)

type Notification struct {
	ID        string
	UserID    string
	Message   string
	IsRead    bool
	CreatedAt time.Time
}

type Repository struct {
	pool  *db.Pool
	inbox *inbox.Repository
}

func NewRepository(pool *db.Pool, inboxRepo *inbox.Repository) *Repository {
	return &Repository{pool: pool, inbox: inboxRepo}
}

// Deliver writes the dedup key and the notifications in one transaction, so
// either the event is marked processed with all its notifications stored, or
// nothing is. Returns false when the event was already processed.
func (r *Repository) Deliver(ctx context.Context, dedupKey, eventType string, notes []Notification) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := r.inbox.Record(ctx, tx, dedupKey, eventType)
	if err != nil {
		return false, fmt.Errorf("record inbox: %w", err)
	}
	if !fresh {
		return false, tx.Commit(ctx)
	}

	for _, n := range notes {
		id := n.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO notifications (id, user_id, message, created_at)
			VALUES ($1, $2, $3, $4)
		`, id, n.UserID, n.Message, n.CreatedAt); err != nil {
			return false, fmt.Errorf("insert notification: %w", err)
		}
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, user_id, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1`
	if unreadOnly {
		query += ` AND NOT is_read`
	}
	query += `
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flips is_read for the user's own notification. Returns false when
// it does not exist or belongs to someone else.
func (r *Repository) MarkRead(ctx context.Context, userID, notificationID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT is_read
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}
