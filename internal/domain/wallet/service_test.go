package wallet_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/wallet"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService() *wallet.Service {
	return wallet.NewService(ledger.New(ledger.NewMemoryStore()), database.NewMemoryTransactor())
}

func TestCreditThenBalance(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	key := ledger.Key(uuid.New(), ledger.WalletHealthPoints)

	balance, err := svc.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "unknown account reads as zero")

	_, err = svc.Credit(ctx, key, amt("500"), "Appointment points", wallet.Meta{})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, key, amt("250.50"), "Appointment points", wallet.Meta{})
	require.NoError(t, err)

	balance, err = svc.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, amt("750.50").Equal(balance), "got %s", balance)
}

func TestWalletsAreIndependent(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	id := uuid.New()

	_, err := svc.Credit(ctx, ledger.Key(id, ledger.WalletCommission), amt("100"), "Commission", wallet.Meta{})
	require.NoError(t, err)

	hp, err := svc.GetBalance(ctx, ledger.Key(id, ledger.WalletHealthPoints))
	require.NoError(t, err)
	assert.True(t, hp.IsZero())
}

func TestDebitInsufficientLeavesLedgerUntouched(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	key := ledger.Key(uuid.New(), ledger.WalletCommission)

	_, err := svc.Credit(ctx, key, amt("100"), "Commission", wallet.Meta{})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, key, amt("100.01"), "Withdrawal", ledger.StatusPending, wallet.Meta{})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	var insufficient *ledger.InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, amt("100").Equal(insufficient.Available))
	assert.True(t, amt("100.01").Equal(insufficient.Requested))

	history, err := svc.History(ctx, key, 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestDebitRequiresPendingOrPaid(t *testing.T) {
	svc := newService()
	key := ledger.Key(uuid.New(), ledger.WalletCommission)

	_, err := svc.Debit(context.Background(), key, amt("1"), "x", ledger.StatusSuccess, wallet.Meta{})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.Debit(context.Background(), key, amt("0"), "x", ledger.StatusPaid, wallet.Meta{})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestCreditRejectsNonPositiveAndUnknownWallet(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, ledger.Key(uuid.New(), ledger.WalletHealthPoints), amt("-5"), "x", wallet.Meta{})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.GetBalance(ctx, ledger.Key(uuid.New(), "cash"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestAmountsFinerThanPaiseAreRejected(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	key := ledger.Key(uuid.New(), ledger.WalletCommission)

	_, err := svc.Credit(ctx, key, amt("0.001"), "x", wallet.Meta{})
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.Credit(ctx, key, amt("100"), "seed", wallet.Meta{})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, key, amt("10.005"), "x", ledger.StatusPaid, wallet.Meta{})
	require.ErrorIs(t, err, ledger.ErrValidation)

	balance, err := svc.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, amt("100").Equal(balance), "balance %s", balance)
}

func TestReferenceReplayIsIdempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	key := ledger.Key(uuid.New(), ledger.WalletHealthPoints)
	meta := wallet.Meta{Reference: "appointment_points:1"}

	first, err := svc.Credit(ctx, key, amt("40"), "Appointment points", meta)
	require.NoError(t, err)
	second, err := svc.Credit(ctx, key, amt("40"), "Appointment points", meta)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	balance, err := svc.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, amt("40").Equal(balance))

	_, err = svc.Credit(ctx, key, amt("41"), "Appointment points", meta)
	assert.ErrorIs(t, err, wallet.ErrReferenceConflict)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	key := ledger.Key(uuid.New(), ledger.WalletHealthPoints)

	_, err := svc.Credit(ctx, key, amt("100"), "Seed", wallet.Meta{})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, key, amt("10"), "Redemption", ledger.StatusPaid, wallet.Meta{})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	balance, err := svc.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "got %s", balance)
}

func TestHistoryNewestFirst(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	key := ledger.Key(uuid.New(), ledger.WalletCommission)

	for _, a := range []string{"1", "2", "3"} {
		_, err := svc.Credit(ctx, key, amt(a), "c"+a, wallet.Meta{})
		require.NoError(t, err)
	}

	page, err := svc.History(ctx, key, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c3", page[0].Description)
	assert.Equal(t, "c2", page[1].Description)

	page, err = svc.History(ctx, key, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c1", page[0].Description)
}

func captureInfoLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestAppliedLogOnlyForCommittedNewEntries(t *testing.T) {
	tx := database.NewMemoryTransactor()
	svc := wallet.NewService(ledger.New(ledger.NewMemoryStore()), tx)
	ctx := context.Background()
	key := ledger.Key(uuid.New(), ledger.WalletCommission)
	buf := captureInfoLog(t)

	_, err := svc.Credit(ctx, key, amt("100"), "bonus", wallet.Meta{Reference: "grant-7"})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, key, amt("100"), "bonus", wallet.Meta{Reference: "grant-7"})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(buf.String(), "wallet credit applied"))

	boom := errors.New("later step failed")
	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.Debit(ctx, key, amt("40"), "payout", ledger.StatusPending, wallet.Meta{}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.NotContains(t, buf.String(), "wallet debit")

	balance, err := svc.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, amt("100").Equal(balance))
}
