package redemption

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/policy"
)

// Offer is a partner's standing redemption discount: the share of a bill
// it accepts in Health Points.
type Offer struct {
	PartnerID       uuid.UUID       `db:"partner_id" json:"partner_id"`
	PartnerType     policy.Role     `db:"partner_type" json:"partner_type"`
	DiscountPercent decimal.Decimal `db:"discount_percent" json:"discount_percent"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Split is how a bill divides between Health Points and cash.
type Split struct {
	TotalBill       decimal.Decimal `json:"total_bill"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	PointsPortion   decimal.Decimal `json:"points_portion"`
	CashPortion     decimal.Decimal `json:"cash_portion"`
	Commission      decimal.Decimal `json:"commission"`
}

// SettleRequest describes one redemption at a partner.
type SettleRequest struct {
	PatientID uuid.UUID
	PartnerID uuid.UUID
	TotalBill decimal.Decimal
	// DiscountPercent, when non-zero, must match the partner's current offer.
	DiscountPercent decimal.Decimal
	// Reference makes a retried settlement replay instead of paying twice.
	Reference string
}

// Settlement is the outcome of a redemption. The cash portion is
// collected by the partner directly and is not recorded in the ledger.
type Settlement struct {
	Split
	PatientID         uuid.UUID `json:"patient_id"`
	PartnerID         uuid.UUID `json:"partner_id"`
	PatientEntryID    uuid.UUID `json:"patient_entry_id"`
	CommissionEntryID uuid.UUID `json:"commission_entry_id,omitempty"`
	Replayed          bool      `json:"replayed"`
}
