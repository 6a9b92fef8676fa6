// Package core provides the expense domain: records, enumerations, money,
// calendar periods and the aggregation/insight computations.
//
// This file contains amount parsing and the JSON representation of Money.
package core

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in hundredths of the user's currency unit.
type Money struct {
	Cents int64
}

var (
	ErrInvalidAmount = NewValidationError("amount", "amount must be a number greater than 0")

	maxAmount = decimal.New(1, 12)

	amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// ParseAmount converts a plain decimal string (digits with an optional
// fractional part after a dot) to Money with half-up rounding to cents.
// Grouping separators, signs and exponents are rejected, as are values that
// round to zero.
//
//	ParseAmount("12.34")  -> 1234
//	ParseAmount("12.345") -> 1235
//	ParseAmount("1,000")  -> error
//	ParseAmount("0.004")  -> error
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return FromDecimal(d)
}

// FromDecimal rounds d to cents and validates the result.
func FromDecimal(d decimal.Decimal) (Money, error) {
	if !d.IsPositive() || d.GreaterThan(maxAmount) {
		return Money{}, ErrInvalidAmount
	}
	m := Money{Cents: d.Round(2).Shift(2).IntPart()}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

func NewMoney(cents int64) Money {
	return Money{Cents: cents}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a plain JSON number (55.5, 12).
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON accepts a JSON number or a string in ParseAmount's format.
// Null leaves m unchanged.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var (
		parsed Money
		err    error
	)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if json.Unmarshal(data, &raw) != nil {
			return ErrInvalidAmount
		}
		parsed, err = ParseAmount(raw)
	} else {
		// JSON numbers may use exponent notation.
		var n json.Number
		if json.Unmarshal(data, &n) != nil {
			return ErrInvalidAmount
		}
		d, derr := decimal.NewFromString(n.String())
		if derr != nil {
			return ErrInvalidAmount
		}
		parsed, err = FromDecimal(d)
	}
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
