package booking

import (
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/policy"
	"github.com/medibridge/medibridge-api/internal/pkg/money"
)

// FeeBreakdown is what a booking costs up front. The consultation fee is
// a refundable deposit; only the platform fee is kept.
type FeeBreakdown struct {
	Fee             decimal.Decimal `json:"fee"`
	PlatformFeeRate decimal.Decimal `json:"platform_fee_rate"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	TotalDue        decimal.Decimal `json:"total_due"`
}

// ComputeBookingFee prices a booking for payerRole. It has no side effects.
func ComputeBookingFee(consultationFee decimal.Decimal, payerRole policy.Role, optedIntoPoints bool) (FeeBreakdown, error) {
	if !consultationFee.IsPositive() {
		return FeeBreakdown{}, ledger.Invalidf("consultation fee must be greater than zero, got %s", consultationFee)
	}
	if !money.IsPaise(consultationFee) {
		return FeeBreakdown{}, ledger.Invalidf("consultation fee %s is finer than paise", consultationFee)
	}
	if payerRole != policy.RolePatient && !payerRole.BooksForPatients() {
		return FeeBreakdown{}, ledger.Invalidf("role %q cannot book appointments", payerRole)
	}

	rate := policy.PlatformFeeRate(payerRole, optedIntoPoints)
	platformFee := money.Of(consultationFee, rate)
	return FeeBreakdown{
		Fee:             consultationFee,
		PlatformFeeRate: rate,
		PlatformFee:     platformFee,
		TotalDue:        consultationFee.Add(platformFee),
	}, nil
}
