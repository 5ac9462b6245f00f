// Package core provides the invoice domain types and money handling.
//
// Money is kept as integer cents internally; the JSON API speaks plain
// decimal numbers, so Money marshals to a two-decimal number and accepts
// numbers on the way in.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in integer cents.
type Money struct {
	Cents int64
}

// FromFloat converts a decimal amount to cents with half-up rounding.
func FromFloat(v float64) Money {
	if v < 0 {
		return Money{Cents: -FromFloat(-v).Cents}
	}
	return Money{Cents: int64(v*100 + 0.5)}
}

// Float returns the decimal value for display and JSON encoding.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// MarshalJSON encodes the amount as a plain decimal number, matching the
// wire format of the REST API ("total": 12.34).
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(m.Float(), 'f', 2, 64)), nil
}

// UnmarshalJSON accepts a decimal number and stores it as cents.
func (m *Money) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return ErrInvalidAmount
	}
	*m = FromFloat(v)
	return nil
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracCents int64 = 0
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 {
				if fracPart[2] >= '5' {
					fracCents++
				}
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}
