package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
)

// Repository defines referral data access
type Repository interface {
	// Create returns ErrAlreadyReferred when the referred user is taken.
	Create(ctx context.Context, r *Referral) error
	GetByReferred(ctx context.Context, referredUserID uuid.UUID) (*Referral, error)
	// LockByReferred is GetByReferred holding a row lock until the unit of work ends.
	LockByReferred(ctx context.Context, referredUserID uuid.UUID) (*Referral, error)
	Update(ctx context.Context, r *Referral) error
	ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*Referral, error)
	// ListPending pages through pending referrals, oldest first.
	ListPending(ctx context.Context, limit, offset int) ([]*Referral, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const selectReferral = `
	SELECT id, referrer_id, referred_user_id, referred_user_role, status, progress, bonus, created_at, completed_at
	FROM referrals
`

func (r *repository) Create(ctx context.Context, ref *Referral) error {
	query := `
		INSERT INTO referrals (id, referrer_id, referred_user_id, referred_user_role, status, progress, bonus, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := database.Executor(ctx, r.db).ExecContext(ctx, query,
		ref.ID, ref.ReferrerID, ref.ReferredUserID, ref.ReferredUserRole,
		ref.Status, ref.Progress, ref.Bonus, ref.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrAlreadyReferred
	}
	return err
}

func (r *repository) get(ctx context.Context, query string, referredUserID uuid.UUID) (*Referral, error) {
	var ref Referral
	err := database.Executor(ctx, r.db).GetContext(ctx, &ref, query, referredUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no referral for user %s", ledger.ErrNotFound, referredUserID)
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *repository) GetByReferred(ctx context.Context, referredUserID uuid.UUID) (*Referral, error) {
	return r.get(ctx, selectReferral+`WHERE referred_user_id = $1`, referredUserID)
}

func (r *repository) LockByReferred(ctx context.Context, referredUserID uuid.UUID) (*Referral, error) {
	if !database.InTx(ctx) {
		return nil, ledger.ErrNoUnitOfWork
	}
	return r.get(ctx, selectReferral+`WHERE referred_user_id = $1 FOR UPDATE`, referredUserID)
}

func (r *repository) Update(ctx context.Context, ref *Referral) error {
	query := `
		UPDATE referrals
		SET status = $2, progress = $3, bonus = $4, completed_at = $5
		WHERE id = $1
	`
	_, err := database.Executor(ctx, r.db).ExecContext(ctx, query,
		ref.ID, ref.Status, ref.Progress, ref.Bonus, ref.CompletedAt,
	)
	return err
}

func (r *repository) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*Referral, error) {
	refs := []*Referral{}
	err := database.Executor(ctx, r.db).SelectContext(ctx, &refs,
		selectReferral+`WHERE referrer_id = $1 ORDER BY created_at DESC`, referrerID)
	return refs, err
}

func (r *repository) ListPending(ctx context.Context, limit, offset int) ([]*Referral, error) {
	refs := []*Referral{}
	err := database.Executor(ctx, r.db).SelectContext(ctx, &refs,
		selectReferral+`WHERE status = 'pending' ORDER BY created_at ASC, id LIMIT $1 OFFSET $2`, limit, offset)
	return refs, err
}
