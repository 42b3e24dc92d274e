// Package money represents bid amounts in the minor unit of the marketplace's
// canonical currency. The core stores and compares plain integer minor units;
// decimal parsing and formatting exist only at the API boundary.
package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary amount in minor units (e.g. cents).
type Amount int64

// minorDigits is the number of decimal places of the canonical currency.
const minorDigits = 2

// Errors returned by Parse.
var (
	ErrNotRepresentable = errors.New("amount is not representable in minor units")
	ErrNotPositive      = errors.New("amount must be positive")
)

// Parse converts a decimal string such as "125.50" into an Amount.
// Values with sub-minor-unit precision or outside the int64 range are
// rejected rather than rounded.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	minor := d.Shift(minorDigits)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q: %w", s, ErrNotRepresentable)
	}
	bi := minor.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("amount %q: %w", s, ErrNotRepresentable)
	}
	return Amount(bi.Int64()), nil
}

// ParsePositive is Parse restricted to strictly positive amounts.
func ParsePositive(s string) (Amount, error) {
	a, err := Parse(s)
	if err != nil {
		return 0, err
	}
	if a <= 0 {
		return 0, fmt.Errorf("amount %q: %w", s, ErrNotPositive)
	}
	return a, nil
}

// FromMinor wraps a raw minor-unit value.
func FromMinor(v int64) Amount { return Amount(v) }

// Minor returns the raw minor-unit value.
func (a Amount) Minor() int64 { return int64(a) }

// Decimal returns the amount as a decimal in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -minorDigits)
}

// String formats the amount with the currency's full minor precision.
func (a Amount) String() string {
	return a.Decimal().StringFixed(minorDigits)
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
