package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation is returned for malformed input: non-positive amounts,
	// unknown wallets, statuses or roles. Nothing is mutated.
	ErrValidation = errors.New("validation error")

	// ErrInsufficientBalance is returned when a debit exceeds the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotFound is returned for unknown accounts, partners, referrals and requests.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateReference is returned when an entry reuses an idempotency reference.
	ErrDuplicateReference = errors.New("duplicate ledger reference")

	// ErrNoUnitOfWork is returned when a lock is requested outside database.Transactor.WithinTx.
	ErrNoUnitOfWork = errors.New("operation requires a unit of work")
)

// Invalidf wraps ErrValidation with a message.
func Invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InsufficientBalanceError carries the shortfall details.
type InsufficientBalanceError struct {
	Account   AccountKey
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: available %s, requested %s",
		e.Account, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// IsClientError reports whether err is caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateReference)
}
