package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/pkg/money"
)

// Wallet distinguishes the value pools an account may hold.
type Wallet string

const (
	WalletHealthPoints Wallet = "health_points"
	WalletCommission   Wallet = "commission"
)

func (w Wallet) Valid() bool {
	return w == WalletHealthPoints || w == WalletCommission
}

// AccountKey identifies one ledger: an account's wallet.
type AccountKey struct {
	AccountID uuid.UUID
	Wallet    Wallet
}

func Key(accountID uuid.UUID, wallet Wallet) AccountKey {
	return AccountKey{AccountID: accountID, Wallet: wallet}
}

func (k AccountKey) String() string {
	return k.AccountID.String() + "/" + string(k.Wallet)
}

// Less orders keys so that multi-account units of work lock in a stable order.
func (k AccountKey) Less(o AccountKey) bool {
	if k.AccountID != o.AccountID {
		return k.AccountID.String() < o.AccountID.String()
	}
	return k.Wallet < o.Wallet
}

type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

type Status string

const (
	StatusSuccess  Status = "success"
	StatusPending  Status = "pending"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusPending, StatusRejected, StatusPaid:
		return true
	}
	return false
}

// Meta is optional context attached to an entry.
type Meta struct {
	CounterpartyID   uuid.UUID
	CounterpartyType string
	// Reference is an idempotency key, unique across the whole ledger.
	Reference string
}

// Entry is an immutable ledger fact.
type Entry struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	Seq              int64           `db:"seq" json:"-"`
	AccountID        uuid.UUID       `db:"account_id" json:"account_id"`
	Wallet           Wallet          `db:"wallet" json:"wallet"`
	Type             EntryType       `db:"entry_type" json:"type"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Description      string          `db:"description" json:"description"`
	Status           Status          `db:"status" json:"status"`
	CounterpartyID   uuid.NullUUID   `db:"counterparty_id" json:"counterparty_id"`
	CounterpartyType *string         `db:"counterparty_type" json:"counterparty_type,omitempty"`
	Reference        *string         `db:"reference" json:"reference,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"timestamp"`
}

func (e Entry) Key() AccountKey {
	return AccountKey{AccountID: e.AccountID, Wallet: e.Wallet}
}

// Contribution is the signed amount the entry adds to its balance.
// Credits count only once successful; debits count while pending or paid.
func (e Entry) Contribution() decimal.Decimal {
	switch e.Type {
	case EntryCredit:
		if e.Status == StatusSuccess {
			return e.Amount
		}
	case EntryDebit:
		if e.Status == StatusPending || e.Status == StatusPaid {
			return e.Amount.Neg()
		}
	}
	return decimal.Zero
}

func (e *Entry) applyMeta(meta Meta) {
	if meta.CounterpartyID != uuid.Nil {
		e.CounterpartyID = uuid.NullUUID{UUID: meta.CounterpartyID, Valid: true}
	}
	if meta.CounterpartyType != "" {
		t := meta.CounterpartyType
		e.CounterpartyType = &t
	}
	if meta.Reference != "" {
		r := meta.Reference
		e.Reference = &r
	}
}

func (e Entry) validate() error {
	if e.AccountID == uuid.Nil {
		return Invalidf("account id is required")
	}
	if !e.Wallet.Valid() {
		return Invalidf("unknown wallet %q", e.Wallet)
	}
	if !e.Amount.IsPositive() {
		return Invalidf("amount must be greater than zero, got %s", e.Amount)
	}
	if !money.IsPaise(e.Amount) {
		return Invalidf("amount %s is finer than paise", e.Amount)
	}
	if !e.Status.Valid() {
		return Invalidf("unknown status %q", e.Status)
	}
	switch e.Type {
	case EntryCredit:
	case EntryDebit:
		if e.Status == StatusSuccess {
			return Invalidf("debits are final as %q, not %q", StatusPaid, StatusSuccess)
		}
	default:
		return Invalidf("unknown entry type %q", e.Type)
	}
	return nil
}

// Fold computes a balance from entries. The result is floored at zero.
func Fold(entries []Entry) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		balance = balance.Add(e.Contribution())
	}
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}
