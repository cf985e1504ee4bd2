package redemption

import (
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/policy"
	"github.com/medibridge/medibridge-api/internal/pkg/money"
)

// ComputeSplit divides totalBill at discountPercent:
//
//	points     = totalBill * discountPercent / 100
//	cash       = totalBill - points
//	commission = points * policy.PartnerCommissionRate
//
// Points and commission are rounded to paise; cash absorbs the rounding so
// points + cash always equals the bill.
func ComputeSplit(totalBill, discountPercent decimal.Decimal) (Split, error) {
	if !totalBill.IsPositive() {
		return Split{}, ledger.Invalidf("total bill must be greater than zero, got %s", totalBill)
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(policy.MaxDiscountPercent) {
		return Split{}, ledger.Invalidf("discount percent must be between 0 and %s, got %s", policy.MaxDiscountPercent, discountPercent)
	}

	points := money.Of(totalBill, money.Percent(discountPercent))
	return Split{
		TotalBill:       totalBill,
		DiscountPercent: discountPercent,
		PointsPortion:   points,
		CashPortion:     totalBill.Sub(points),
		Commission:      money.Of(points, policy.PartnerCommissionRate),
	}, nil
}
