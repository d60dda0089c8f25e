package money

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every Amount carries.
// All currencies share it; a currency with a different minor unit is stored at scale 2 anyway.
const Scale = 2

var (
	ErrInvalidMoney    = errors.New("invalid money amount")
	ErrInvalidCurrency = errors.New("invalid currency")
)

var minorFactor = decimal.New(1, Scale)

// Amount is a fixed-point monetary value in minor units (1.50 == Amount(150)).
type Amount int64

// MaxAmount is the largest representable amount.
const MaxAmount = Amount(math.MaxInt64)

// AmountFromDecimal converts a decimal value to minor units, rejecting
// values with more precision than Scale or values outside the int64 range.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Mul(minorFactor)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: at most %d decimal places allowed", ErrInvalidMoney, Scale)
	}
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || minor.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("%w: too large", ErrInvalidMoney)
	}
	return Amount(minor.IntPart()), nil
}

// ParseAmount parses a decimal string such as "49999.99".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMoney, s)
	}
	return AmountFromDecimal(d)
}

// MustParse is ParseAmount for constants and tests.
func MustParse(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromMajor returns the amount for a whole number of major units.
func FromMajor(units int64) Amount {
	return Amount(units * 100)
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

func (a Amount) IsPositive() bool {
	return a > 0
}

// Add returns a+b; ok is false when the sum does not fit in an Amount.
func (a Amount) Add(b Amount) (sum Amount, ok bool) {
	sum = a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// SaturatingAdd is Add clamped to the representable range.
func (a Amount) SaturatingAdd(b Amount) Amount {
	if sum, ok := a.Add(b); ok {
		return sum
	}
	if b > 0 {
		return MaxAmount
	}
	return Amount(math.MinInt64)
}

// MarshalJSON renders the amount as a JSON number with exactly Scale decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
// The value never passes through float64.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		*a = 0
		return nil
	}
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// NormalizeCurrency upper-cases and validates an ISO-4217-like code.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}
	return c, nil
}
