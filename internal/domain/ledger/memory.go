package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medibridge/medibridge-api/internal/pkg/database"
)

// MemoryStore keeps the ledger in process. Used by tests and local runs;
// pair it with database.MemoryTransactor.
type MemoryStore struct {
	mu         sync.RWMutex
	seq        int64
	accounts   map[AccountKey]time.Time
	entries    map[AccountKey][]Entry
	references map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[AccountKey]time.Time),
		entries:    make(map[AccountKey][]Entry),
		references: make(map[string]Entry),
	}
}

// Lock only records the account; MemoryTransactor already serializes
// units of work.
func (m *MemoryStore) Lock(ctx context.Context, key AccountKey) error {
	if !database.InTx(ctx) {
		return ErrNoUnitOfWork
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[key]; ok {
		return nil
	}
	m.accounts[key] = time.Now().UTC()
	database.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.accounts, key)
	})
	return nil
}

func (m *MemoryStore) Append(ctx context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Reference != nil {
		if _, taken := m.references[*e.Reference]; taken {
			return Entry{}, ErrDuplicateReference
		}
	}

	key := e.Key()
	_, existed := m.accounts[key]
	if !existed {
		m.accounts[key] = e.CreatedAt
	}

	m.seq++
	e.Seq = m.seq
	m.entries[key] = append(m.entries[key], e)
	if e.Reference != nil {
		m.references[*e.Reference] = e
	}

	database.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeLocked(key, e, existed)
	})
	return e, nil
}

func (m *MemoryStore) removeLocked(key AccountKey, e Entry, keepAccount bool) {
	entries := m.entries[key]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ID == e.ID {
			m.entries[key] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if e.Reference != nil {
		delete(m.references, *e.Reference)
	}
	if !keepAccount {
		delete(m.accounts, key)
	}
}

func (m *MemoryStore) ReadAll(_ context.Context, key AccountKey) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, len(m.entries[key]))
	copy(out, m.entries[key])
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) ReadPage(ctx context.Context, key AccountKey, limit, offset int) ([]Entry, error) {
	all, err := m.ReadAll(ctx, key)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return []Entry{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MemoryStore) FindByReference(_ context.Context, reference string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.references[reference]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Seq > entries[j].Seq
	})
}
