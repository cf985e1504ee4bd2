package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/medibridge/medibridge-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

const entryColumns = `id, seq, account_id, wallet, entry_type, amount, description, status,
	counterparty_id, counterparty_type, reference, created_at`

// PostgresStore persists the ledger in ledger_accounts / ledger_entries.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureAccount(ctx context.Context, q database.Querier, key AccountKey) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_accounts (account_id, wallet)
		VALUES ($1, $2)
		ON CONFLICT (account_id, wallet) DO NOTHING
	`, key.AccountID, string(key.Wallet))
	return err
}

func (s *PostgresStore) Lock(ctx context.Context, key AccountKey) error {
	if !database.InTx(ctx) {
		return ErrNoUnitOfWork
	}
	q := database.Executor(ctx, s.db)

	if err := s.ensureAccount(ctx, q, key); err != nil {
		return fmt.Errorf("ensure account %s: %w", key, err)
	}

	var one int
	err := q.GetContext(ctx, &one, `
		SELECT 1 FROM ledger_accounts
		WHERE account_id = $1 AND wallet = $2
		FOR UPDATE
	`, key.AccountID, string(key.Wallet))
	if err != nil {
		return fmt.Errorf("lock account %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) (Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := database.Executor(ctx, s.db)

	if err := s.ensureAccount(ctx2, q, e.Key()); err != nil {
		return Entry{}, fmt.Errorf("ensure account %s: %w", e.Key(), err)
	}

	err := q.GetContext(ctx2, &e.Seq, `
		INSERT INTO ledger_entries (
			id, account_id, wallet, entry_type, amount, description, status,
			counterparty_id, counterparty_type, reference, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq
	`, e.ID, e.AccountID, string(e.Wallet), string(e.Type), e.Amount, e.Description, string(e.Status),
		e.CounterpartyID, e.CounterpartyType, e.Reference, e.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return Entry{}, ErrDuplicateReference
		}
		return Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ReadAll(ctx context.Context, key AccountKey) ([]Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	entries := make([]Entry, 0)
	err := database.Executor(ctx, s.db).SelectContext(ctx2, &entries, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1 AND wallet = $2
		ORDER BY created_at DESC, seq DESC
	`, key.AccountID, string(key.Wallet))
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", key, err)
	}
	return entries, nil
}

func (s *PostgresStore) ReadPage(ctx context.Context, key AccountKey, limit, offset int) ([]Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	entries := make([]Entry, 0)
	err := database.Executor(ctx, s.db).SelectContext(ctx2, &entries, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1 AND wallet = $2
		ORDER BY created_at DESC, seq DESC
		LIMIT $3 OFFSET $4
	`, key.AccountID, string(key.Wallet), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("read ledger page %s: %w", key, err)
	}
	return entries, nil
}

func (s *PostgresStore) FindByReference(ctx context.Context, reference string) (Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var e Entry
	err := database.Executor(ctx, s.db).GetContext(ctx2, &e, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE reference = $1
	`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("find ledger reference: %w", err)
	}
	return e, nil
}
