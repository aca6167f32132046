package payments

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Fixed-point money at scale 4
// =============================================================================

const (
	// Scale is the number of fractional digits every Amount carries.
	Scale int32 = 4
)

var (
	MinDeposit    = decimal.RequireFromString("0.0001")
	MaxDeposit    = decimal.RequireFromString("50000")
	MinWithdrawal = decimal.RequireFromString("0.0001")
	MaxWithdrawal = decimal.RequireFromString("50000")

	// maxMagnitude is the largest value a 96-bit mantissa can hold. Sums that
	// leave [-maxMagnitude, maxMagnitude] are treated as overflow.
	maxMagnitude = decimal.RequireFromString("79228162514264337593543950335")
)

// Parsed literals must fit a 96-bit mantissa at scale <= 28. Comparing a
// value with a far larger exponent rescales through 10^|exp|.
const (
	maxExponent = 28
	maxDigits   = 29
)

// Amount is a monetary value. Amounts only enter the system through
// ValidateDeposit / ValidateWithdrawal, which round once; arithmetic after
// that is exact and checked.
type Amount struct {
	value decimal.Decimal
}

// Zero returns 0.0000.
func Zero() Amount { return Amount{value: decimal.New(0, -Scale)} }

// NewAmount wraps d as received from the input, unrounded. ValidateDeposit
// and ValidateWithdrawal apply the bounds and round to Scale.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{value: d}
}

func round(d decimal.Decimal) Amount {
	return Amount{value: d.RoundBank(Scale)}
}

// MustAmount parses s and panics on malformed input. Intended for tests and
// constants.
func MustAmount(s string) Amount {
	return NewAmount(decimal.RequireFromString(s))
}

// ParseAmount parses a decimal literal, trimming surrounding whitespace.
// The result is raw: bounds and rounding are applied by the validators.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, ErrMissingAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w %q: %v", ErrInvalidAmount, s, err)
	}
	if exp := d.Exponent(); exp < -maxExponent || exp > maxExponent || d.NumDigits() > maxDigits {
		return decimal.Decimal{}, fmt.Errorf("%w %q: out of range", ErrInvalidAmount, s)
	}
	return d, nil
}

// ValidateDeposit checks raw against [MinDeposit, MaxDeposit] and rounds it.
func ValidateDeposit(raw decimal.Decimal) (Amount, error) {
	switch {
	case raw.LessThan(MinDeposit):
		return Amount{}, &LimitError{Kind: KindDeposit, Amount: raw, Min: MinDeposit, Max: MaxDeposit, err: ErrDepositBelowMinimum}
	case raw.GreaterThan(MaxDeposit):
		return Amount{}, &LimitError{Kind: KindDeposit, Amount: raw, Min: MinDeposit, Max: MaxDeposit, err: ErrDepositAboveMaximum}
	}
	return round(raw), nil
}

// ValidateWithdrawal checks raw against [MinWithdrawal, MaxWithdrawal] and
// rounds it.
func ValidateWithdrawal(raw decimal.Decimal) (Amount, error) {
	switch {
	case raw.LessThan(MinWithdrawal):
		return Amount{}, &LimitError{Kind: KindWithdrawal, Amount: raw, Min: MinWithdrawal, Max: MaxWithdrawal, err: ErrWithdrawBelowMinimum}
	case raw.GreaterThan(MaxWithdrawal):
		return Amount{}, &LimitError{Kind: KindWithdrawal, Amount: raw, Min: MinWithdrawal, Max: MaxWithdrawal, err: ErrWithdrawAboveMaximum}
	}
	return round(raw), nil
}

// CheckedAdd returns a+b. It panics with *OverflowError if the result is
// out of range; overflow means a broken invariant, not bad input.
func (a Amount) CheckedAdd(b Amount) Amount {
	sum := a.value.Add(b.value)
	if sum.Abs().GreaterThan(maxMagnitude) {
		panic(&OverflowError{Op: "add", A: a, B: b})
	}
	return Amount{value: sum}
}

// CheckedSub returns a-b with the same overflow policy as CheckedAdd.
func (a Amount) CheckedSub(b Amount) Amount {
	diff := a.value.Sub(b.value)
	if diff.Abs().GreaterThan(maxMagnitude) {
		panic(&OverflowError{Op: "subtract", A: a, B: b})
	}
	return Amount{value: diff}
}

func (a Amount) Decimal() decimal.Decimal  { return a.value }
func (a Amount) Cmp(b Amount) int          { return a.value.Cmp(b.value) }
func (a Amount) LessThan(b Amount) bool    { return a.value.LessThan(b.value) }
func (a Amount) GreaterThan(b Amount) bool { return a.value.GreaterThan(b.value) }
func (a Amount) IsZero() bool              { return a.value.IsZero() }
func (a Amount) IsNegative() bool          { return a.value.IsNegative() }

// Equal reports whether a and b have the same value at the same scale.
func (a Amount) Equal(b Amount) bool {
	return a.value.Exponent() == b.value.Exponent() && a.value.Equal(b.value)
}

// String renders the amount with exactly Scale fractional digits.
func (a Amount) String() string {
	return a.value.StringFixed(Scale)
}
