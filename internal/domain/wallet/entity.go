package wallet

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
)

// Balance is the read model returned by the balance endpoint.
type Balance struct {
	AccountID uuid.UUID       `json:"account_id"`
	Wallet    ledger.Wallet   `json:"wallet"`
	Balance   decimal.Decimal `json:"balance"`
}

// Meta carries optional entry context from callers.
type Meta = ledger.Meta
