// Package policy is the one place where the marketplace's money rules are
// defined: commission and platform fee rates, partner discount bounds,
// withdrawal minimums and referral milestones.
package policy

import (
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
)

type Role string

const (
	RolePatient           Role = "patient"
	RoleDoctor            Role = "doctor"
	RoleHealthCoordinator Role = "health-coordinator"
	RoleLab               Role = "lab"
	RolePharmacy          Role = "pharmacy"
	RoleAdmin             Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleHealthCoordinator, RoleLab, RolePharmacy, RoleAdmin:
		return true
	}
	return false
}

// BooksForPatients reports whether r books appointments on a patient's behalf.
func (r Role) BooksForPatients() bool {
	return r == RoleHealthCoordinator || r == RoleLab || r == RolePharmacy
}

// AcceptsRedemption reports whether r may take Health Points toward a bill.
func (r Role) AcceptsRedemption() bool {
	return r == RoleLab || r == RolePharmacy
}

// Wallet returns the wallet r earns into.
func (r Role) Wallet() ledger.Wallet {
	if r == RolePatient {
		return ledger.WalletHealthPoints
	}
	return ledger.WalletCommission
}

// PartnerCommissionRate is the share of a redeemed points portion credited
// to the partner.
var PartnerCommissionRate = decimal.RequireFromString("0.05")

var (
	minDiscountPercent = map[Role]decimal.Decimal{
		RolePharmacy: decimal.NewFromInt(15),
		RoleLab:      decimal.NewFromInt(30),
	}
	MaxDiscountPercent = decimal.NewFromInt(100)
)

// MinDiscountPercent returns the lowest redemption discount r may offer.
func MinDiscountPercent(r Role) (decimal.Decimal, bool) {
	d, ok := minDiscountPercent[r]
	return d, ok
}

var (
	feeRatePartnerOptedIn  = decimal.RequireFromString("0.10")
	feeRatePartner         = decimal.RequireFromString("0.05")
	feeRatePatientOptedIn  = decimal.RequireFromString("0.05")
	feeRatePatientSelfBook = decimal.Zero
)

// PlatformFeeRate is the non-refundable booking fee rate.
func PlatformFeeRate(payer Role, optedIntoPoints bool) decimal.Decimal {
	switch {
	case payer.BooksForPatients() && optedIntoPoints:
		return feeRatePartnerOptedIn
	case payer.BooksForPatients():
		return feeRatePartner
	case optedIntoPoints:
		return feeRatePatientOptedIn
	default:
		return feeRatePatientSelfBook
	}
}

var minWithdrawal = map[Role]decimal.Decimal{
	RoleDoctor:            decimal.NewFromInt(1000),
	RoleHealthCoordinator: decimal.NewFromInt(1000),
	RoleLab:               decimal.NewFromInt(1000),
	RolePharmacy:          decimal.NewFromInt(1000),
}

// MinWithdrawal returns the smallest payout r may request. Patients cannot
// withdraw Health Points.
func MinWithdrawal(r Role) (decimal.Decimal, bool) {
	d, ok := minWithdrawal[r]
	return d, ok
}

// Metric names what a referral's progress counts.
type Metric string

const (
	MetricCompletedConsultations Metric = "completed_consultations"
	MetricRedeemedINR            Metric = "redeemed_inr"
	MetricCompletedBookings      Metric = "completed_bookings"
)

// Milestone is the one-time referral target for a referred role.
type Milestone struct {
	Metric    Metric
	Threshold decimal.Decimal
	Bonus     decimal.Decimal
}

var milestones = map[Role]Milestone{
	RoleDoctor:            {Metric: MetricCompletedConsultations, Threshold: decimal.NewFromInt(10), Bonus: decimal.NewFromInt(1000)},
	RolePharmacy:          {Metric: MetricRedeemedINR, Threshold: decimal.NewFromInt(10000), Bonus: decimal.NewFromInt(500)},
	RoleLab:               {Metric: MetricRedeemedINR, Threshold: decimal.NewFromInt(10000), Bonus: decimal.NewFromInt(500)},
	RoleHealthCoordinator: {Metric: MetricCompletedBookings, Threshold: decimal.NewFromInt(50), Bonus: decimal.NewFromInt(250)},
}

// MilestoneFor returns the milestone for a referred role. Patients have none.
func MilestoneFor(r Role) (Milestone, bool) {
	m, ok := milestones[r]
	return m, ok
}
