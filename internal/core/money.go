// Package core holds the ledger domain: the category taxonomy, money and
// date handling, and the transaction/project/budget types with their
// validation rules.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in cents. Arithmetic stays in integer cents; the JSON
// representation is a plain decimal number so snapshots stay compatible with
// the export format.
type Money struct {
	Cents int64
}

// ParseAmount converts a decimal string to Money with half-up rounding on the
// third decimal place. Both dot and comma separators are accepted. Zero is a
// valid amount here (budget limits may be zero); negative values are not.
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidAmount
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
			return Money{}, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return Money{}, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return Money{Cents: iv*100 + fracCents}, nil
}

// Positive reports whether the amount is strictly greater than zero.
func (m Money) Positive() bool {
	return m.Cents > 0
}

// Add returns the sum of two amounts.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Units returns the amount in whole currency units as a float64, for display
// and percentage math only. Use cents for everything else.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount as a decimal with trailing zeros trimmed.
func (m Money) String() string {
	c := m.Cents
	neg := c < 0
	if neg {
		c = -c
	}
	s := strconv.FormatInt(c/100, 10)
	if rem := c % 100; rem != 0 {
		if rem%10 == 0 {
			s += "." + strconv.FormatInt(rem/10, 10)
		} else if rem < 10 {
			s += ".0" + strconv.FormatInt(rem, 10)
		} else {
			s += "." + strconv.FormatInt(rem, 10)
		}
	}
	if neg {
		return "-" + s
	}
	return s
}

// MarshalJSON emits the amount as a JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number (or a quoted decimal, which some
// exporters produce) and rejects negative or malformed values.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "null" {
		return nil
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	m.Cents = parsed.Cents
	return nil
}
