package withdrawal

import "errors"

// ErrAlreadyResolved is returned when a request has already been approved
// or rejected by a different resolution.
var ErrAlreadyResolved = errors.New("withdrawal request already resolved")
