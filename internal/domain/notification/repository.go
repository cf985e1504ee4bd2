package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medibridge/medibridge-api/internal/pkg/database"
)

// Repository defines notification data access
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Notification, error)
	CountUnread(ctx context.Context, accountID uuid.UUID) (int, error)
	// MarkAsRead returns ErrNotFound unless id belongs to accountID.
	MarkAsRead(ctx context.Context, accountID, id uuid.UUID, at time.Time) error
	DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates notification repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (id, account_id, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := database.Executor(ctx, r.db).ExecContext(ctx, query,
		n.ID, n.AccountID, n.Message, n.IsRead, n.CreatedAt,
	)
	return err
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Notification, error) {
	query := `
		SELECT id, account_id, message, is_read, created_at, read_at
		FROM notifications
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	notifications := []*Notification{}
	err := database.Executor(ctx, r.db).SelectContext(ctx, &notifications, query, accountID, limit, offset)
	return notifications, err
}

func (r *repository) CountUnread(ctx context.Context, accountID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE account_id = $1 AND NOT is_read`
	var count int
	err := database.Executor(ctx, r.db).GetContext(ctx, &count, query, accountID)
	return count, err
}

func (r *repository) MarkAsRead(ctx context.Context, accountID, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE notifications SET is_read = true, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND account_id = $2
	`
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, query, id, accountID, at)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := database.Executor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM notifications WHERE created_at < $1 AND is_read = true`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
