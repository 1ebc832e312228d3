package accrual

import (
	"testing"
	"time"

	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleContract() *contract.Contract {
	return &contract.Contract{
		Status:                  contract.StatusActive,
		LoanPrincipalAmount:     dec("10000"),
		CurrentPrincipalAmount:  dec("10000"),
		OriginalPrincipalAmount: decimal.NewNullDecimal(dec("10000")),
		InterestRate:            dec("0.03"),
		PlatformFeeRate:         dec("0.01"),
		ContractStartDate:       date(2024, 3, 1),
		ContractEndDate:         date(2024, 3, 31),
		ContractDurationDays:    30,
	}
}

func TestCompute_WorkedScenario(t *testing.T) {
	c := sampleContract()
	today := date(2024, 3, 15) // day 15

	a, err := Compute(c, today)
	require.NoError(t, err)

	assert.Equal(t, 30, a.DurationDays)
	assert.Equal(t, 15, a.DaysElapsed)
	assert.Equal(t, 15, a.DaysRemaining)
	assert.True(t, a.DailyRate.Equal(dec("0.001")), "daily rate %s", a.DailyRate)
	assert.True(t, a.InterestAccrued.Equal(dec("150")), "interest %s", a.InterestAccrued)
	assert.True(t, a.PlatformFee.Equal(dec("100")), "fee %s", a.PlatformFee)
}

func TestCompute_ElapsedRemainingIdentity(t *testing.T) {
	c := sampleContract()
	for offset := -10; offset <= 60; offset++ {
		today := AddDays(c.ContractStartDate, offset)
		a, err := Compute(c, today)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, a.DaysElapsed, 1)
		assert.LessOrEqual(t, a.DaysElapsed, a.DurationDays)
		assert.Equal(t, a.DurationDays, a.DaysElapsed+a.DaysRemaining, "offset %d", offset)
	}
}

func TestCompute_IsDeterministic(t *testing.T) {
	c := sampleContract()
	first, err := Compute(c, date(2024, 3, 20))
	require.NoError(t, err)
	second, err := Compute(c, date(2024, 3, 20))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *contract.Contract)
		expected int
		err      error
	}{
		{"stored value wins", func(c *contract.Contract) { c.ContractDurationDays = 45 }, 45, nil},
		{"derived from dates", func(c *contract.Contract) { c.ContractDurationDays = 0 }, 30, nil},
		{"partial day rounds up", func(c *contract.Contract) {
			c.ContractDurationDays = 0
			c.ContractEndDate = c.ContractStartDate.Add(36 * time.Hour)
		}, 2, nil},
		{"same day floors at one", func(c *contract.Contract) {
			c.ContractDurationDays = 0
			c.ContractEndDate = c.ContractStartDate
		}, 1, nil},
		{"no dates", func(c *contract.Contract) {
			c.ContractDurationDays = 0
			c.ContractEndDate = time.Time{}
		}, 0, ErrNoDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sampleContract()
			tt.mutate(c)
			got, err := Duration(c)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeRate(t *testing.T) {
	assert.True(t, NormalizeRate(dec("3")).Equal(dec("0.03")))
	assert.True(t, NormalizeRate(dec("0.03")).Equal(dec("0.03")))
	assert.True(t, NormalizeRate(dec("1")).Equal(dec("1")), "exactly 1 is already a fraction")
	assert.True(t, NormalizeRate(dec("1.5")).Equal(dec("0.015")))
}

func TestCompute_PercentRatesMatchFractionRates(t *testing.T) {
	fraction := sampleContract()
	fraction.PlatformFeeRate = dec("0.02")
	percent := sampleContract()
	percent.InterestRate = dec("3")
	percent.PlatformFeeRate = dec("2")

	a, err := Compute(fraction, date(2024, 3, 15))
	require.NoError(t, err)
	b, err := Compute(percent, date(2024, 3, 15))
	require.NoError(t, err)
	assert.True(t, a.InterestAccrued.Equal(b.InterestAccrued))
	assert.True(t, a.PlatformFee.Equal(b.PlatformFee))
}

func TestFeeBaseFallsBackToCurrentPrincipal(t *testing.T) {
	c := sampleContract()
	c.OriginalPrincipalAmount = decimal.NullDecimal{}
	c.CurrentPrincipalAmount = dec("8000")

	a, err := Compute(c, date(2024, 3, 15))
	require.NoError(t, err)
	assert.True(t, a.FeeBase.Equal(dec("8000")))
	assert.True(t, a.PlatformFee.Equal(dec("80")))
}

func TestPlatformFee_ScalesWithDurationNotElapsed(t *testing.T) {
	assert.True(t, PlatformFee(dec("10000"), dec("0.01"), 60).Equal(dec("200")))
	assert.True(t, PlatformFee(dec("10000"), dec("0.01"), 45).Equal(dec("150")))
}

func TestMoney_RoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "1.01", Money(dec("1.005")).StringFixed(2))
	assert.Equal(t, "-1.01", Money(dec("-1.005")).StringFixed(2))
	assert.Equal(t, "83.33", Interest(dec("10000"), DailyRate(dec("0.025")), 10).StringFixed(2))
}

func TestCalendar_TodayUsesBusinessZone(t *testing.T) {
	bangkok, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)

	// 20:00 UTC on the 14th is already the 15th in Bangkok.
	cal := NewCalendar(bangkok, func() time.Time { return time.Date(2024, 3, 14, 20, 0, 0, 0, time.UTC) })
	assert.Equal(t, date(2024, 3, 15), cal.Today())
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, DaysBetween(date(2024, 3, 1), date(2024, 3, 1)))
	assert.Equal(t, 3, DaysBetween(date(2024, 3, 1), date(2024, 3, 4)))
	assert.Equal(t, -2, DaysBetween(date(2024, 3, 4), date(2024, 3, 2)))
	assert.Equal(t, 29, DaysBetween(date(2024, 2, 1), date(2024, 3, 1)), "leap year February")
}
