// Package moneypkg converts between decimal money strings and integer minor units.
package moneypkg

import (
	"errors"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits of a minor unit.
const Scale = 2

var (
	// ErrInvalidFormat indicates that the amount is not a decimal number.
	ErrInvalidFormat = errors.New("invalid amount format")
	// ErrTooPrecise indicates that the amount has more fractional digits than minor units allow.
	ErrTooPrecise = errors.New("amount has too many fractional digits")
	// ErrOutOfRange indicates that the amount does not fit into minor units.
	ErrOutOfRange = errors.New("amount out of range")
)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Parse converts a decimal string such as "12.50" into minor units (1250).
//
// The sign is preserved; rejecting non-positive amounts is up to the caller.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidFormat
	}

	minor := d.Shift(Scale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrTooPrecise
	}

	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, ErrOutOfRange
	}

	return minor.IntPart(), nil
}

// Format renders minor units as a decimal string with two fractional digits.
func Format(minor int64) string {
	return decimal.New(minor, -Scale).StringFixed(Scale)
}

// ValidMoney is a validator.Func accepting strings that Parse understands.
var ValidMoney validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		_, err := Parse(s)
		return err == nil
	}

	return false
}
