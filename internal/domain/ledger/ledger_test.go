package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAppendRejectsNonPositiveAmount(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	key := ledger.Key(uuid.New(), ledger.WalletHealthPoints)

	for _, a := range []string{"0", "-10"} {
		_, err := l.Append(context.Background(), key, ledger.EntryCredit, ledger.StatusSuccess, amt(a), "bad", ledger.Meta{})
		require.ErrorIs(t, err, ledger.ErrValidation, "amount %s", a)
	}

	entries, err := l.ReadAll(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppendRejectsUnknownWalletAndSuccessDebit(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	ctx := context.Background()

	_, err := l.Append(ctx, ledger.Key(uuid.New(), "cash"), ledger.EntryCredit, ledger.StatusSuccess, amt("1"), "x", ledger.Meta{})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.Append(ctx, ledger.Key(uuid.New(), ledger.WalletCommission), ledger.EntryDebit, ledger.StatusSuccess, amt("1"), "x", ledger.Meta{})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestReadAllNewestFirstWithInsertionTieBreak(t *testing.T) {
	store := ledger.NewMemoryStore()
	key := ledger.Key(uuid.New(), ledger.WalletCommission)
	ctx := context.Background()

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l := ledger.New(store).WithClock(fixedClock(t0))
	first, err := l.Append(ctx, key, ledger.EntryCredit, ledger.StatusSuccess, amt("10"), "first", ledger.Meta{})
	require.NoError(t, err)
	second, err := l.Append(ctx, key, ledger.EntryCredit, ledger.StatusSuccess, amt("20"), "second", ledger.Meta{})
	require.NoError(t, err)

	l.WithClock(fixedClock(t0.Add(time.Minute)))
	third, err := l.Append(ctx, key, ledger.EntryCredit, ledger.StatusSuccess, amt("30"), "third", ledger.Meta{})
	require.NoError(t, err)

	entries, err := l.ReadAll(ctx, key)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, third.ID, entries[0].ID)
	assert.Equal(t, second.ID, entries[1].ID)
	assert.Equal(t, first.ID, entries[2].ID)
}

func TestFoldRule(t *testing.T) {
	entries := []ledger.Entry{
		{Type: ledger.EntryCredit, Status: ledger.StatusSuccess, Amount: amt("1000")},
		{Type: ledger.EntryCredit, Status: ledger.StatusPending, Amount: amt("500")},
		{Type: ledger.EntryDebit, Status: ledger.StatusPending, Amount: amt("100")},
		{Type: ledger.EntryDebit, Status: ledger.StatusPaid, Amount: amt("200")},
		{Type: ledger.EntryDebit, Status: ledger.StatusRejected, Amount: amt("300")},
	}
	assert.True(t, ledger.Fold(entries).Equal(amt("700")))
}

func TestFoldFlooredAtZero(t *testing.T) {
	entries := []ledger.Entry{
		{Type: ledger.EntryCredit, Status: ledger.StatusSuccess, Amount: amt("50")},
		{Type: ledger.EntryDebit, Status: ledger.StatusPaid, Amount: amt("80")},
	}
	assert.True(t, ledger.Fold(entries).IsZero())
}

func TestEntriesAreNotMutatedByLaterAppends(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	key := ledger.Key(uuid.New(), ledger.WalletHealthPoints)
	ctx := context.Background()

	_, err := l.Append(ctx, key, ledger.EntryCredit, ledger.StatusSuccess, amt("100"), "seed", ledger.Meta{})
	require.NoError(t, err)
	before, err := l.ReadAll(ctx, key)
	require.NoError(t, err)

	// Callers mutating their copy must not reach the store.
	before[0].Amount = amt("999")

	_, err = l.Append(ctx, key, ledger.EntryDebit, ledger.StatusPaid, amt("40"), "spend", ledger.Meta{})
	require.NoError(t, err)

	after, err := l.ReadAll(ctx, key)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.True(t, after[1].Amount.Equal(amt("100")))
	assert.Equal(t, "seed", after[1].Description)
}

func TestDuplicateReference(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	key := ledger.Key(uuid.New(), ledger.WalletCommission)
	ctx := context.Background()
	meta := ledger.Meta{Reference: "bonus:1"}

	_, err := l.Append(ctx, key, ledger.EntryCredit, ledger.StatusSuccess, amt("500"), "bonus", meta)
	require.NoError(t, err)
	_, err = l.Append(ctx, key, ledger.EntryCredit, ledger.StatusSuccess, amt("500"), "bonus", meta)
	require.ErrorIs(t, err, ledger.ErrDuplicateReference)

	found, err := l.FindByReference(ctx, "bonus:1")
	require.NoError(t, err)
	assert.Equal(t, key, found.Key())

	_, err = l.FindByReference(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLockRequiresUnitOfWork(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	key := ledger.Key(uuid.New(), ledger.WalletCommission)

	err := l.Lock(context.Background(), key)
	require.ErrorIs(t, err, ledger.ErrNoUnitOfWork)

	tx := database.NewMemoryTransactor()
	err = tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return l.Lock(ctx, key)
	})
	assert.NoError(t, err)
}

func TestFailedUnitOfWorkLeavesNoEntries(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	tx := database.NewMemoryTransactor()
	a := ledger.Key(uuid.New(), ledger.WalletHealthPoints)
	b := ledger.Key(uuid.New(), ledger.WalletCommission)
	boom := errors.New("boom")

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		if _, err := l.Append(ctx, a, ledger.EntryDebit, ledger.StatusPaid, amt("10"), "a", ledger.Meta{Reference: "ref-a"}); err != nil {
			return err
		}
		if _, err := l.Append(ctx, b, ledger.EntryCredit, ledger.StatusSuccess, amt("1"), "b", ledger.Meta{}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	for _, key := range []ledger.AccountKey{a, b} {
		entries, err := l.ReadAll(context.Background(), key)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
	_, err = l.FindByReference(context.Background(), "ref-a")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestReadPage(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	key := ledger.Key(uuid.New(), ledger.WalletHealthPoints)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		l.WithClock(fixedClock(base.Add(time.Duration(i) * time.Hour)))
		_, err := l.Append(ctx, key, ledger.EntryCredit, ledger.StatusSuccess, decimal.NewFromInt(int64(i+1)), "c", ledger.Meta{})
		require.NoError(t, err)
	}

	page, err := l.ReadPage(ctx, key, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].Amount.Equal(amt("4")))
	assert.True(t, page[1].Amount.Equal(amt("3")))

	empty, err := l.ReadPage(ctx, key, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAppendRejectsAmountsFinerThanPaise(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	key := ledger.Key(uuid.New(), ledger.WalletHealthPoints)
	ctx := context.Background()

	for _, a := range []string{"0.001", "10.005"} {
		_, err := l.Append(ctx, key, ledger.EntryCredit, ledger.StatusSuccess, amt(a), "bad", ledger.Meta{})
		require.ErrorIs(t, err, ledger.ErrValidation, "amount %s", a)
	}

	_, err := l.Append(ctx, key, ledger.EntryCredit, ledger.StatusSuccess, amt("10.500"), "ok", ledger.Meta{})
	require.NoError(t, err)

	balance, err := l.Balance(ctx, key)
	require.NoError(t, err)
	assert.True(t, amt("10.5").Equal(balance), "balance %s", balance)
}
