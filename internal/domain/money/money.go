// Package money provides the exact-decimal amount type used by account
// balances and transaction deltas. Arithmetic is performed on decimals,
// never on floats, and amounts serialize as decimal strings to preserve
// precision across the journal and the wire.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrInvalidAmount  = errors.New("amount must be a valid decimal")
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// Amount is an exact decimal value. The zero value is zero.
type Amount struct {
	dec decimal.Decimal
}

// Zero is the zero amount.
var Zero = Amount{}

// Parse converts a decimal string into an Amount. The string must parse as a
// decimal and must not be negative.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("%w: %q", ErrNegativeAmount, s)
	}
	return Amount{dec: d}, nil
}

// ParseSigned converts a decimal string into an Amount, permitting negative
// values. Pending balances are signed; account balances are not.
func ParseSigned(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{dec: d}, nil
}

// MustParse is Parse for test fixtures and constants; it panics on error.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromInt converts whole units into an Amount.
func FromInt(n int64) Amount {
	return Amount{dec: decimal.NewFromInt(n)}
}

// Add returns a + other.
func (a Amount) Add(other Amount) Amount {
	return Amount{dec: a.dec.Add(other.dec)}
}

// Sub returns a - other. The result may be negative; callers guard with Cmp.
func (a Amount) Sub(other Amount) Amount {
	return Amount{dec: a.dec.Sub(other.dec)}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{dec: a.dec.Neg()}
}

// Cmp compares a and other, returning -1, 0 or 1.
func (a Amount) Cmp(other Amount) int {
	return a.dec.Cmp(other.dec)
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.dec.IsZero()
}

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool {
	return a.dec.IsNegative()
}

// IsPositive reports whether the amount is above zero.
func (a Amount) IsPositive() bool {
	return a.dec.IsPositive()
}

// String renders the amount as a plain decimal string.
func (a Amount) String() string {
	return a.dec.String()
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return a.dec.MarshalJSON()
}

// UnmarshalJSON decodes a quoted decimal string or bare number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.dec.UnmarshalJSON(data)
}

// Equal reports whether two amounts represent the same value, ignoring scale.
func (a Amount) Equal(other Amount) bool {
	return a.dec.Equal(other.dec)
}
