package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
)

// Repository defines withdrawal request data access
type Repository interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id uuid.UUID) (*Request, error)
	// Lock is Get holding a row lock until the unit of work ends.
	Lock(ctx context.Context, id uuid.UUID) (*Request, error)
	Resolve(ctx context.Context, r *Request) error
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Request, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Request, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const selectRequest = `
	SELECT id, account_id, wallet, account_name, amount, status, debit_entry_id,
	       resolution_key, resolved_by, created_at, resolved_at
	FROM withdrawal_requests
`

func (r *repository) Create(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO withdrawal_requests (id, account_id, wallet, account_name, amount, status, debit_entry_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := database.Executor(ctx, r.db).ExecContext(ctx, query,
		req.ID, req.AccountID, req.Wallet, req.AccountName, req.Amount, req.Status, req.DebitEntryID, req.CreatedAt,
	)
	return err
}

func (r *repository) get(ctx context.Context, query string, id uuid.UUID) (*Request, error) {
	var req Request
	err := database.Executor(ctx, r.db).GetContext(ctx, &req, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: withdrawal request %s", ledger.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.get(ctx, selectRequest+`WHERE id = $1`, id)
}

func (r *repository) Lock(ctx context.Context, id uuid.UUID) (*Request, error) {
	if !database.InTx(ctx) {
		return nil, ledger.ErrNoUnitOfWork
	}
	return r.get(ctx, selectRequest+`WHERE id = $1 FOR UPDATE`, id)
}

// Resolve moves a pending request to its terminal status. The status guard
// in the WHERE clause makes a second resolution a no-op at the row level.
func (r *repository) Resolve(ctx context.Context, req *Request) error {
	query := `
		UPDATE withdrawal_requests
		SET status = $2, resolution_key = $3, resolved_by = $4, resolved_at = $5
		WHERE id = $1 AND status = 'pending'
	`
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query,
		req.ID, req.Status, req.ResolutionKey, req.ResolvedBy, req.ResolvedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func (r *repository) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Request, error) {
	out := []*Request{}
	err := database.Executor(ctx, r.db).SelectContext(ctx, &out,
		selectRequest+`WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`, status, limit, offset)
	return out, err
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Request, error) {
	out := []*Request{}
	err := database.Executor(ctx, r.db).SelectContext(ctx, &out,
		selectRequest+`WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
	return out, err
}

// MemoryRepository is the in-process Repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Request
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]Request)}
}

func (m *MemoryRepository) Create(ctx context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[req.ID] = *req
	database.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.items, req.ID)
	})
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: withdrawal request %s", ledger.ErrNotFound, id)
	}
	return &req, nil
}

func (m *MemoryRepository) Lock(ctx context.Context, id uuid.UUID) (*Request, error) {
	if !database.InTx(ctx) {
		return nil, ledger.ErrNoUnitOfWork
	}
	return m.Get(ctx, id)
}

func (m *MemoryRepository) Resolve(ctx context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.items[req.ID]
	if !ok {
		return fmt.Errorf("%w: withdrawal request %s", ledger.ErrNotFound, req.ID)
	}
	if prev.Status != StatusPending {
		return ErrAlreadyResolved
	}
	m.items[req.ID] = *req
	database.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.items[req.ID] = prev
	})
	return nil
}

func (m *MemoryRepository) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Request, error) {
	return m.list(func(r *Request) bool { return r.Status == status }, false, limit, offset), nil
}

func (m *MemoryRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Request, error) {
	return m.list(func(r *Request) bool { return r.AccountID == accountID }, true, limit, offset), nil
}

func (m *MemoryRepository) list(match func(*Request) bool, newestFirst bool, limit, offset int) []*Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*Request{}
	for _, item := range m.items {
		req := item
		if match(&req) {
			out = append(out, &req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []*Request{}
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}
