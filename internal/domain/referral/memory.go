package referral

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
)

// MemoryRepository is the in-process Repository. Writes register undo
// actions with the surrounding database.MemoryTransactor unit of work.
type MemoryRepository struct {
	mu         sync.RWMutex
	byReferred map[uuid.UUID]*Referral
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byReferred: make(map[uuid.UUID]*Referral)}
}

func (m *MemoryRepository) Create(ctx context.Context, r *Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byReferred[r.ReferredUserID]; taken {
		return ErrAlreadyReferred
	}
	cp := *r
	m.byReferred[r.ReferredUserID] = &cp
	database.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.byReferred, r.ReferredUserID)
	})
	return nil
}

func (m *MemoryRepository) GetByReferred(ctx context.Context, referredUserID uuid.UUID) (*Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.byReferred[referredUserID]
	if !ok {
		return nil, fmt.Errorf("%w: no referral for user %s", ledger.ErrNotFound, referredUserID)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) LockByReferred(ctx context.Context, referredUserID uuid.UUID) (*Referral, error) {
	if !database.InTx(ctx) {
		return nil, ledger.ErrNoUnitOfWork
	}
	return m.GetByReferred(ctx, referredUserID)
}

func (m *MemoryRepository) Update(ctx context.Context, r *Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.byReferred[r.ReferredUserID]
	if !ok || prev.ID != r.ID {
		return fmt.Errorf("%w: referral %s", ledger.ErrNotFound, r.ID)
	}
	cp := *r
	m.byReferred[r.ReferredUserID] = &cp
	database.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.byReferred[prev.ReferredUserID] = prev
	})
	return nil
}

func (m *MemoryRepository) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*Referral{}
	for _, r := range m.byReferred {
		if r.ReferrerID == referrerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) ListPending(ctx context.Context, limit, offset int) ([]*Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*Referral{}
	for _, r := range m.byReferred {
		if r.Status == StatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []*Referral{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
