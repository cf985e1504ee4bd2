package wallet

import "errors"

var (
	// ErrReferenceConflict is returned when an idempotency reference is
	// replayed with a different account or amount.
	ErrReferenceConflict = errors.New("reference conflicts with a different entry")
)
