package referral

import "errors"

var (
	// ErrAlreadyReferred is returned when the referred user already has a referrer.
	ErrAlreadyReferred = errors.New("user already has a referrer")
)
