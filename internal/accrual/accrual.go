// Package accrual implements the day-count convention shared by quoting,
// completion and the reminder sweep.
//
// Dates are civil dates carried as time.Time at UTC midnight. A month is a
// fixed 30 days for both the daily interest rate and the platform fee period;
// this is the marketplace's published business rule, not a calendar
// approximation to be corrected.
package accrual

import (
	"errors"
	"math"
	"time"

	"github.com/pawnmarket-contract-engine/internal/domain/contract"
	"github.com/shopspring/decimal"
)

const (
	// DaysPerMonth is the fixed month length used for rate conversion.
	DaysPerMonth = 30
	// MoneyPlaces is the number of decimal places monetary outputs are rounded to.
	MoneyPlaces = 2
)

// ErrNoDuration is returned when a contract has neither a stored duration nor
// a usable start/end pair.
var ErrNoDuration = errors.New("contract has no computable duration")

var (
	hundred      = decimal.NewFromInt(100)
	daysPerMonth = decimal.NewFromInt(DaysPerMonth)
)

// Accrual is the day-count and amount breakdown for one contract as of one day.
type Accrual struct {
	AsOf            time.Time       `json:"as_of"`
	DurationDays    int             `json:"duration_days"`
	DaysElapsed     int             `json:"days_elapsed"`
	DaysRemaining   int             `json:"days_remaining"`
	Principal       decimal.Decimal `json:"principal"`
	MonthlyRate     decimal.Decimal `json:"monthly_rate"`
	DailyRate       decimal.Decimal `json:"daily_rate"`
	InterestAccrued decimal.Decimal `json:"interest_accrued"`
	FeeBase         decimal.Decimal `json:"fee_base"`
	FeeRate         decimal.Decimal `json:"fee_rate"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
}

// Compute returns the accrual figures for c as of today. today must already be
// normalized with Calendar.Today or Date.
func Compute(c *contract.Contract, today time.Time) (Accrual, error) {
	duration, err := Duration(c)
	if err != nil {
		return Accrual{}, err
	}

	elapsed := Elapsed(c.ContractStartDate, today, duration)
	monthly := NormalizeRate(c.InterestRate)
	daily := DailyRate(monthly)
	principal := c.Principal()
	feeRate := NormalizeRate(c.PlatformFeeRate)
	feeBase := c.FeeBase()

	return Accrual{
		AsOf:            Date(today),
		DurationDays:    duration,
		DaysElapsed:     elapsed,
		DaysRemaining:   Remaining(duration, elapsed),
		Principal:       principal,
		MonthlyRate:     monthly,
		DailyRate:       daily,
		InterestAccrued: Interest(principal, daily, elapsed),
		FeeBase:         feeBase,
		FeeRate:         feeRate,
		PlatformFee:     PlatformFee(feeBase, feeRate, duration),
	}, nil
}

// Duration reads the stored duration, else derives ceil((end-start)/day) floored at 1.
func Duration(c *contract.Contract) (int, error) {
	if c.ContractDurationDays > 0 {
		return c.ContractDurationDays, nil
	}
	if c.ContractStartDate.IsZero() || c.ContractEndDate.IsZero() {
		return 0, ErrNoDuration
	}
	days := int(math.Ceil(c.ContractEndDate.Sub(c.ContractStartDate).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days, nil
}

// Elapsed counts the start date as day 1 and clamps the result to [1, duration].
func Elapsed(start, today time.Time, duration int) int {
	elapsed := DaysBetween(start, today) + 1
	if elapsed < 1 {
		return 1
	}
	if elapsed > duration {
		return duration
	}
	return elapsed
}

// Remaining is duration-elapsed, floored at 0.
func Remaining(duration, elapsed int) int {
	if r := duration - elapsed; r > 0 {
		return r
	}
	return 0
}

// NormalizeRate converts a whole-percentage rate (>1) into a fraction.
func NormalizeRate(rate decimal.Decimal) decimal.Decimal {
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return rate.Div(hundred)
	}
	return rate
}

// DailyRate converts a normalized monthly rate with the fixed 30-day month.
func DailyRate(monthly decimal.Decimal) decimal.Decimal {
	return monthly.Div(daysPerMonth)
}

// Interest is principal x daily rate x days, rounded to money.
func Interest(principal, daily decimal.Decimal, days int) decimal.Decimal {
	return Money(principal.Mul(daily).Mul(decimal.NewFromInt(int64(days))))
}

// PlatformFee charges feeRate on feeBase for every 30 days of the contract duration.
func PlatformFee(feeBase, feeRate decimal.Decimal, duration int) decimal.Decimal {
	periods := decimal.NewFromInt(int64(duration)).Div(daysPerMonth)
	return Money(feeBase.Mul(feeRate).Mul(periods))
}

// Money rounds half away from zero to two places.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
