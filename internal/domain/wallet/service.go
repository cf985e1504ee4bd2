package wallet

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/pkg/database"
	"github.com/medibridge/medibridge-api/internal/pkg/money"
)

// Service wraps one ledger per (account, wallet) with balance-checked
// credits and debits. Every mutation locks the account for the duration of
// its unit of work, so the read-then-append balance check cannot race.
type Service struct {
	ledger *ledger.Ledger
	tx     database.Transactor
}

func NewService(l *ledger.Ledger, tx database.Transactor) *Service {
	return &Service{ledger: l, tx: tx}
}

func (s *Service) GetBalance(ctx context.Context, key ledger.AccountKey) (decimal.Decimal, error) {
	if !key.Wallet.Valid() {
		return decimal.Zero, ledger.Invalidf("unknown wallet %q", key.Wallet)
	}
	return s.ledger.Balance(ctx, key)
}

// Credit appends a successful credit.
func (s *Service) Credit(ctx context.Context, key ledger.AccountKey, amount decimal.Decimal, description string, meta Meta) (ledger.Entry, error) {
	var entry ledger.Entry
	var replayed bool
	nested := database.InTx(ctx)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.Lock(ctx, key); err != nil {
			return err
		}
		if replay, ok, err := s.replay(ctx, key, ledger.EntryCredit, amount, meta); err != nil || ok {
			entry, replayed = replay, ok
			return err
		}

		var err error
		entry, err = s.ledger.Append(ctx, key, ledger.EntryCredit, ledger.StatusSuccess, amount, description, meta)
		return err
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	appliedEvent(nested, replayed).
		Str("account_id", key.AccountID.String()).
		Str("wallet", string(key.Wallet)).
		Str("amount", amount.StringFixed(2)).
		Str("entry_id", entry.ID.String()).
		Msg(appliedMessage("credit", nested, replayed))
	return entry, nil
}

// Debit appends a debit with status pending (awaiting payout) or paid
// (final). It fails with *ledger.InsufficientBalanceError when amount
// exceeds the balance, leaving the ledger untouched.
func (s *Service) Debit(ctx context.Context, key ledger.AccountKey, amount decimal.Decimal, description string, status ledger.Status, meta Meta) (ledger.Entry, error) {
	if status != ledger.StatusPending && status != ledger.StatusPaid {
		return ledger.Entry{}, ledger.Invalidf("debit status must be %q or %q", ledger.StatusPending, ledger.StatusPaid)
	}
	if !amount.IsPositive() {
		return ledger.Entry{}, ledger.Invalidf("amount must be greater than zero, got %s", amount)
	}
	if !money.IsPaise(amount) {
		return ledger.Entry{}, ledger.Invalidf("amount %s is finer than paise", amount)
	}

	var entry ledger.Entry
	var replayed bool
	nested := database.InTx(ctx)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.Lock(ctx, key); err != nil {
			return err
		}
		if replay, ok, err := s.replay(ctx, key, ledger.EntryDebit, amount, meta); err != nil || ok {
			entry, replayed = replay, ok
			return err
		}

		balance, err := s.ledger.Balance(ctx, key)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return &ledger.InsufficientBalanceError{Account: key, Available: balance, Requested: amount}
		}

		entry, err = s.ledger.Append(ctx, key, ledger.EntryDebit, status, amount, description, meta)
		return err
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	appliedEvent(nested, replayed).
		Str("account_id", key.AccountID.String()).
		Str("wallet", string(key.Wallet)).
		Str("amount", amount.StringFixed(2)).
		Str("status", string(status)).
		Str("entry_id", entry.ID.String()).
		Msg(appliedMessage("debit", nested, replayed))
	return entry, nil
}

// Lock takes the per-account locks for keys in a stable order. It must be
// called inside a unit of work; units of work touching several accounts
// call it first so that concurrent ones cannot deadlock.
func (s *Service) Lock(ctx context.Context, keys ...ledger.AccountKey) error {
	sorted := append([]ledger.AccountKey(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	for _, k := range sorted {
		if err := s.ledger.Lock(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// FindByReference returns the entry recorded under an idempotency reference.
func (s *Service) FindByReference(ctx context.Context, reference string) (ledger.Entry, error) {
	return s.ledger.FindByReference(ctx, reference)
}

// History returns entries newest first.
func (s *Service) History(ctx context.Context, key ledger.AccountKey, limit, offset int) ([]ledger.Entry, error) {
	if !key.Wallet.Valid() {
		return nil, ledger.Invalidf("unknown wallet %q", key.Wallet)
	}
	return s.ledger.ReadPage(ctx, key, limit, offset)
}

// replay returns the entry already recorded under meta.Reference, if any.
func (s *Service) replay(ctx context.Context, key ledger.AccountKey, typ ledger.EntryType, amount decimal.Decimal, meta Meta) (ledger.Entry, bool, error) {
	if meta.Reference == "" {
		return ledger.Entry{}, false, nil
	}
	existing, err := s.ledger.FindByReference(ctx, meta.Reference)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	if existing.Key() != key || existing.Type != typ || !existing.Amount.Equal(amount) {
		return ledger.Entry{}, false, ErrReferenceConflict
	}
	return existing, true, nil
}

// appliedEvent logs at info only when this call committed a new entry.
// Entries staged in a caller's unit of work are reported by the caller
// once it commits.
func appliedEvent(nested, replayed bool) *zerolog.Event {
	if nested || replayed {
		return log.Debug()
	}
	return log.Info()
}

func appliedMessage(kind string, nested, replayed bool) string {
	switch {
	case replayed:
		return "wallet " + kind + " replayed"
	case nested:
		return "wallet " + kind + " staged"
	}
	return "wallet " + kind + " applied"
}
