package redemption_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/policy"
	"github.com/medibridge/medibridge-api/internal/domain/redemption"
	"github.com/medibridge/medibridge-api/internal/domain/referral"
	"github.com/medibridge/medibridge-api/internal/domain/wallet"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// commissionFailingStore refuses commission credits so settlement has to
// roll back the patient debit it already wrote.
type commissionFailingStore struct {
	*ledger.MemoryStore
	fail bool
}

func (s *commissionFailingStore) Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if s.fail && e.Wallet == ledger.WalletCommission {
		return ledger.Entry{}, errors.New("commission ledger unavailable")
	}
	return s.MemoryStore.Append(ctx, e)
}

type fixture struct {
	store    *commissionFailingStore
	wallets  *wallet.Service
	offers   *redemption.OfferService
	tracker  *referral.Tracker
	settler  *redemption.Service
	patient  uuid.UUID
	pharmacy uuid.UUID
	lab      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tx := database.NewMemoryTransactor()
	store := &commissionFailingStore{MemoryStore: ledger.NewMemoryStore()}
	wallets := wallet.NewService(ledger.New(store), tx)
	offerRepo := redemption.NewMemoryOfferRepository()
	tracker := referral.NewTracker(tx, referral.NewMemoryRepository(), wallets, nil)

	f := &fixture{
		store:    store,
		wallets:  wallets,
		offers:   redemption.NewOfferService(offerRepo),
		tracker:  tracker,
		settler:  redemption.NewService(tx, wallets, offerRepo, tracker, nil),
		patient:  uuid.New(),
		pharmacy: uuid.New(),
		lab:      uuid.New(),
	}

	ctx := context.Background()
	_, err := f.offers.UpdateOffer(ctx, f.pharmacy, policy.RolePharmacy, amt("15"))
	require.NoError(t, err)
	_, err = f.offers.UpdateOffer(ctx, f.lab, policy.RoleLab, amt("30"))
	require.NoError(t, err)
	return f
}

func (f *fixture) fund(t *testing.T, amount string) {
	t.Helper()
	_, err := f.wallets.Credit(context.Background(), ledger.Key(f.patient, ledger.WalletHealthPoints), amt(amount), "Appointment points", wallet.Meta{})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, id uuid.UUID, w ledger.Wallet) decimal.Decimal {
	t.Helper()
	b, err := f.wallets.GetBalance(context.Background(), ledger.Key(id, w))
	require.NoError(t, err)
	return b
}

func TestComputeSplit(t *testing.T) {
	split, err := redemption.ComputeSplit(amt("1000"), amt("30"))
	require.NoError(t, err)
	assert.True(t, amt("300").Equal(split.PointsPortion))
	assert.True(t, amt("700").Equal(split.CashPortion))
	assert.True(t, amt("15").Equal(split.Commission))

	split, err = redemption.ComputeSplit(amt("333.33"), amt("15"))
	require.NoError(t, err)
	assert.True(t, amt("50").Equal(split.PointsPortion), "got %s", split.PointsPortion)
	assert.True(t, split.PointsPortion.Add(split.CashPortion).Equal(amt("333.33")))
	assert.True(t, amt("2.5").Equal(split.Commission))

	_, err = redemption.ComputeSplit(amt("0"), amt("30"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = redemption.ComputeSplit(amt("100"), amt("101"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestUpdateOfferBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.offers.UpdateOffer(ctx, f.pharmacy, policy.RolePharmacy, amt("14.99"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = f.offers.UpdateOffer(ctx, f.lab, policy.RoleLab, amt("29"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = f.offers.UpdateOffer(ctx, f.lab, policy.RoleLab, amt("100.5"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = f.offers.UpdateOffer(ctx, uuid.New(), policy.RoleDoctor, amt("50"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	offer, err := f.offers.UpdateOffer(ctx, f.lab, policy.RoleLab, amt("100"))
	require.NoError(t, err)
	assert.True(t, amt("100").Equal(offer.DiscountPercent))

	_, err = f.offers.GetOffer(ctx, uuid.New())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSettleConservesValue(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "1000")

	res, err := f.settler.Settle(context.Background(), redemption.SettleRequest{
		PatientID: f.patient,
		PartnerID: f.lab,
		TotalBill: amt("1000"),
	})
	require.NoError(t, err)
	assert.True(t, amt("300").Equal(res.PointsPortion))
	assert.True(t, amt("700").Equal(res.CashPortion))
	assert.True(t, amt("15").Equal(res.Commission))

	assert.True(t, amt("700").Equal(f.balance(t, f.patient, ledger.WalletHealthPoints)))
	assert.True(t, amt("15").Equal(f.balance(t, f.lab, ledger.WalletCommission)))

	history, err := f.wallets.History(context.Background(), ledger.Key(f.patient, ledger.WalletHealthPoints), 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	debit := history[0]
	assert.Equal(t, ledger.EntryDebit, debit.Type)
	assert.Equal(t, ledger.StatusPaid, debit.Status)
	assert.Equal(t, f.lab, debit.CounterpartyID.UUID)
	require.NotNil(t, debit.CounterpartyType)
	assert.Equal(t, "lab", *debit.CounterpartyType)
}

func TestSettleRejectsOverRedemption(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "200")

	_, err := f.settler.Settle(context.Background(), redemption.SettleRequest{
		PatientID: f.patient,
		PartnerID: f.lab,
		TotalBill: amt("1000"),
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	assert.True(t, amt("200").Equal(f.balance(t, f.patient, ledger.WalletHealthPoints)))
	assert.True(t, f.balance(t, f.lab, ledger.WalletCommission).IsZero())
}

func TestSettleRollsBackDebitWhenCommissionFails(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "1000")
	f.store.fail = true

	_, err := f.settler.Settle(context.Background(), redemption.SettleRequest{
		PatientID: f.patient,
		PartnerID: f.pharmacy,
		TotalBill: amt("1000"),
	})
	require.Error(t, err)

	assert.True(t, amt("1000").Equal(f.balance(t, f.patient, ledger.WalletHealthPoints)))
	history, err := f.wallets.History(context.Background(), ledger.Key(f.patient, ledger.WalletHealthPoints), 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "the debit must not survive a failed settlement")
}

func TestSettleValidation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "1000")
	ctx := context.Background()

	_, err := f.settler.Settle(ctx, redemption.SettleRequest{PatientID: f.patient, PartnerID: f.lab, TotalBill: amt("0")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = f.settler.Settle(ctx, redemption.SettleRequest{PatientID: f.patient, PartnerID: f.lab, TotalBill: amt("100"), DiscountPercent: amt("50")})
	assert.ErrorIs(t, err, ledger.ErrValidation, "stale discount")

	_, err = f.settler.Settle(ctx, redemption.SettleRequest{PatientID: f.patient, PartnerID: uuid.New(), TotalBill: amt("100")})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	assert.True(t, amt("1000").Equal(f.balance(t, f.patient, ledger.WalletHealthPoints)))
}

func TestSettleReplaysWithReference(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "1000")
	req := redemption.SettleRequest{
		PatientID: f.patient,
		PartnerID: f.pharmacy,
		TotalBill: amt("400"),
		Reference: "bill-42",
	}

	first, err := f.settler.Settle(context.Background(), req)
	require.NoError(t, err)
	second, err := f.settler.Settle(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.PatientEntryID, second.PatientEntryID)
	assert.True(t, first.Commission.Equal(second.Commission))
	assert.True(t, amt("940").Equal(f.balance(t, f.patient, ledger.WalletHealthPoints)))
	assert.True(t, amt("3").Equal(f.balance(t, f.pharmacy, ledger.WalletCommission)))
}

func TestSettleReferenceReusedWithDifferentBillConflicts(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "5000")
	ctx := context.Background()

	first, err := f.settler.Settle(ctx, redemption.SettleRequest{
		PatientID: f.patient, PartnerID: f.lab, TotalBill: amt("1000"), Reference: "k1",
	})
	require.NoError(t, err)
	assert.True(t, amt("300").Equal(first.PointsPortion))

	_, err = f.settler.Settle(ctx, redemption.SettleRequest{
		PatientID: f.patient, PartnerID: f.lab, TotalBill: amt("2000"), Reference: "k1",
	})
	require.ErrorIs(t, err, wallet.ErrReferenceConflict)

	assert.True(t, amt("4700").Equal(f.balance(t, f.patient, ledger.WalletHealthPoints)))
	assert.True(t, amt("15").Equal(f.balance(t, f.lab, ledger.WalletCommission)))
}

func TestSettleCountsTowardPartnerReferral(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "20000")
	ctx := context.Background()
	referrer := uuid.New()

	_, err := f.tracker.Register(ctx, referrer, f.lab, policy.RoleLab)
	require.NoError(t, err)

	// 30% of 20000 = 6000 points.
	_, err = f.settler.Settle(ctx, redemption.SettleRequest{PatientID: f.patient, PartnerID: f.lab, TotalBill: amt("20000")})
	require.NoError(t, err)

	ref, err := f.tracker.Get(ctx, f.lab)
	require.NoError(t, err)
	assert.True(t, amt("6000").Equal(ref.Progress))
	assert.Equal(t, referral.StatusPending, ref.Status)

	// 30% of 13400 = 4020 points, 10020 in total.
	_, err = f.settler.Settle(ctx, redemption.SettleRequest{PatientID: f.patient, PartnerID: f.lab, TotalBill: amt("13400")})
	require.NoError(t, err)

	ref, err = f.tracker.Get(ctx, f.lab)
	require.NoError(t, err)
	assert.Equal(t, referral.StatusCompleted, ref.Status)
	assert.True(t, amt("500").Equal(f.balance(t, referrer, ledger.WalletCommission)))
}
