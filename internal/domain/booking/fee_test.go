package booking

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/domain/policy"
)

func TestComputeBookingFeeTable(t *testing.T) {
	tests := []struct {
		name    string
		payer   policy.Role
		optedIn bool
		fee     string
		total   string
	}{
		{"partner opted in", policy.RoleHealthCoordinator, true, "100", "1100"},
		{"partner not opted in", policy.RoleLab, false, "50", "1050"},
		{"pharmacy opted in", policy.RolePharmacy, true, "100", "1100"},
		{"patient opted in", policy.RolePatient, true, "50", "1050"},
		{"patient self booking", policy.RolePatient, false, "0", "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeBookingFee(decimal.NewFromInt(1000), tt.payer, tt.optedIn)
			require.NoError(t, err)
			assert.True(t, decimal.NewFromInt(1000).Equal(got.Fee))
			assert.True(t, decimal.RequireFromString(tt.fee).Equal(got.PlatformFee), "platform fee %s", got.PlatformFee)
			assert.True(t, decimal.RequireFromString(tt.total).Equal(got.TotalDue), "total %s", got.TotalDue)
		})
	}
}

func TestComputeBookingFeeRoundsToPaise(t *testing.T) {
	got, err := ComputeBookingFee(decimal.RequireFromString("333.33"), policy.RoleHealthCoordinator, true)
	require.NoError(t, err)
	assert.Equal(t, "33.33", got.PlatformFee.StringFixed(2))
	assert.Equal(t, "366.66", got.TotalDue.StringFixed(2))
}

func TestComputeBookingFeeRejects(t *testing.T) {
	_, err := ComputeBookingFee(decimal.Zero, policy.RolePatient, false)
	assert.True(t, errors.Is(err, ledger.ErrValidation))

	_, err = ComputeBookingFee(decimal.NewFromInt(-5), policy.RolePatient, false)
	assert.True(t, errors.Is(err, ledger.ErrValidation))

	_, err = ComputeBookingFee(decimal.NewFromInt(500), policy.RoleDoctor, false)
	assert.True(t, errors.Is(err, ledger.ErrValidation), "doctors do not book")

	_, err = ComputeBookingFee(decimal.RequireFromString("500.005"), policy.RolePatient, false)
	assert.True(t, errors.Is(err, ledger.ErrValidation), "sub-paise fee")
}
