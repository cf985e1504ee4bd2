package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOfRoundsToPaise(t *testing.T) {
	got := Of(MustParse("333.33"), MustParse("0.05"))
	assert.True(t, got.Equal(MustParse("16.67")), "got %s", got)
}

func TestPercent(t *testing.T) {
	assert.True(t, Percent(decimal.NewFromInt(30)).Equal(MustParse("0.3")))
}

func TestSum(t *testing.T) {
	assert.True(t, Sum().IsZero())
	assert.True(t, Sum(MustParse("1.10"), MustParse("2.20")).Equal(MustParse("3.3")))
}

func TestIsPaise(t *testing.T) {
	for _, s := range []string{"1", "10.5", "10.50", "10.500", "0.01"} {
		assert.True(t, IsPaise(MustParse(s)), s)
	}
	for _, s := range []string{"0.001", "10.005", "-0.009"} {
		assert.False(t, IsPaise(MustParse(s)), s)
	}
}
