package policy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
)

func TestPlatformFeeRateTable(t *testing.T) {
	tests := []struct {
		payer   Role
		optedIn bool
		want    string
	}{
		{RoleHealthCoordinator, true, "0.10"},
		{RoleLab, false, "0.05"},
		{RolePharmacy, true, "0.10"},
		{RolePatient, true, "0.05"},
		{RolePatient, false, "0"},
	}
	for _, tt := range tests {
		got := PlatformFeeRate(tt.payer, tt.optedIn)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%s/%v: got %s", tt.payer, tt.optedIn, got)
	}
}

func TestDiscountBounds(t *testing.T) {
	p, ok := MinDiscountPercent(RolePharmacy)
	assert.True(t, ok)
	assert.True(t, p.Equal(decimal.NewFromInt(15)))

	l, ok := MinDiscountPercent(RoleLab)
	assert.True(t, ok)
	assert.True(t, l.Equal(decimal.NewFromInt(30)))

	_, ok = MinDiscountPercent(RoleDoctor)
	assert.False(t, ok)
}

func TestMilestones(t *testing.T) {
	m, ok := MilestoneFor(RoleDoctor)
	assert.True(t, ok)
	assert.Equal(t, MetricCompletedConsultations, m.Metric)
	assert.True(t, m.Bonus.Equal(decimal.NewFromInt(1000)))

	_, ok = MilestoneFor(RolePatient)
	assert.False(t, ok)
}

func TestRoleWallet(t *testing.T) {
	assert.Equal(t, ledger.WalletHealthPoints, RolePatient.Wallet())
	assert.Equal(t, ledger.WalletCommission, RolePharmacy.Wallet())
	_, ok := MinWithdrawal(RolePatient)
	assert.False(t, ok)
}
