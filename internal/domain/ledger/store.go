package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store persists ledger entries. It is append-only: there is no update or
// delete. Corrections are new entries.
type Store interface {
	// Lock creates the account on first use and serializes writers on it
	// until the surrounding unit of work ends.
	Lock(ctx context.Context, key AccountKey) error

	// Append persists e. Returns ErrDuplicateReference if e.Reference is taken.
	Append(ctx context.Context, e Entry) (Entry, error)

	// ReadAll returns every entry of key, newest first; ties keep
	// reverse insertion order.
	ReadAll(ctx context.Context, key AccountKey) ([]Entry, error)

	// ReadPage is ReadAll with limit/offset.
	ReadPage(ctx context.Context, key AccountKey, limit, offset int) ([]Entry, error)

	// FindByReference returns ErrNotFound when no entry carries reference.
	FindByReference(ctx context.Context, reference string) (Entry, error)
}

// Ledger validates and stamps entries before they reach the Store.
type Ledger struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// WithClock overrides the timestamp source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Append validates and appends an entry to key's log.
func (l *Ledger) Append(ctx context.Context, key AccountKey, typ EntryType, status Status, amount decimal.Decimal, description string, meta Meta) (Entry, error) {
	e := Entry{
		ID:          uuid.New(),
		AccountID:   key.AccountID,
		Wallet:      key.Wallet,
		Type:        typ,
		Amount:      amount,
		Description: description,
		Status:      status,
		CreatedAt:   l.now().UTC(),
	}
	e.applyMeta(meta)

	if err := e.validate(); err != nil {
		return Entry{}, err
	}
	return l.store.Append(ctx, e)
}

func (l *Ledger) Lock(ctx context.Context, key AccountKey) error {
	return l.store.Lock(ctx, key)
}

func (l *Ledger) ReadAll(ctx context.Context, key AccountKey) ([]Entry, error) {
	return l.store.ReadAll(ctx, key)
}

func (l *Ledger) ReadPage(ctx context.Context, key AccountKey, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.store.ReadPage(ctx, key, limit, offset)
}

// Balance folds key's entries.
func (l *Ledger) Balance(ctx context.Context, key AccountKey) (decimal.Decimal, error) {
	entries, err := l.store.ReadAll(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	return Fold(entries), nil
}

func (l *Ledger) FindByReference(ctx context.Context, reference string) (Entry, error) {
	return l.store.FindByReference(ctx, reference)
}
