package withdrawal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Decision is an admin's resolution of a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Status returns the terminal status d leads to.
func (d Decision) Status() (Status, bool) {
	switch d {
	case DecisionApprove:
		return StatusApproved, true
	case DecisionReject:
		return StatusRejected, true
	}
	return "", false
}

// Request is a payout request backed by a pending wallet debit.
type Request struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	AccountID     uuid.UUID       `db:"account_id" json:"account_id"`
	Wallet        ledger.Wallet   `db:"wallet" json:"wallet"`
	AccountName   string          `db:"account_name" json:"account_name"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Status        Status          `db:"status" json:"status"`
	DebitEntryID  uuid.UUID       `db:"debit_entry_id" json:"debit_entry_id"`
	ResolutionKey *string         `db:"resolution_key" json:"-"`
	ResolvedBy    *uuid.UUID      `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt    *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`

	// Replayed is set when a resolve call matched an earlier identical one.
	Replayed bool `db:"-" json:"replayed,omitempty"`
}

func (r *Request) Key() ledger.AccountKey {
	return ledger.Key(r.AccountID, r.Wallet)
}

func (r *Request) DebitReference() string {
	return "withdrawal:" + r.ID.String()
}

// ReversalReference is the ledger reference of the compensating credit.
func (r *Request) ReversalReference() string {
	return "withdrawal_rejected:" + r.ID.String()
}

// IsResolved reports whether an admin has already decided r.
func (r *Request) IsResolved() bool {
	return r.Status != StatusPending
}

func (r *Request) resolvedWithKey(key string) bool {
	return key != "" && r.ResolutionKey != nil && *r.ResolutionKey == key
}
