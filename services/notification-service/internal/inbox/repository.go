package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository records processed events for de-duplication. The dedup key is
// (appointment id, target state), so a redelivered transition event cannot
// notify twice.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Record inserts the dedup key inside the caller's transaction. It returns
// false when the key was already present.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, dedupKey string, eventType string) (bool, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (dedup_key, event_type)
		VALUES ($1, $2)
	`, dedupKey, eventType)
	if err == nil {
		return true, nil
	}

	if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
		return false, nil
	}

	return false, err
}
