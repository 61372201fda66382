// Package core holds the ledger's data model together with its money and
// calendar helpers.
package core

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Money is an amount in cents. Amounts are stored as integers so that
// sums over many installments never drift.
type Money struct {
	Cents int64
}

var hundred = decimal.NewFromInt(100)

// MoneyFromDecimal converts a decimal amount to cents, rounding half away from zero.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Mul(hundred).Round(0).IntPart()}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Times multiplies the amount by n.
func (m Money) Times(n int) Money { return Money{Cents: m.Cents * int64(n)} }

func (m Money) IsZero() bool { return m.Cents == 0 }

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with two decimals and a dot separator.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a plain JSON number in currency units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string. Strings may use
// a comma as decimal separator ("12,34") and must be positive.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*m = Money{}
		return nil
	}
	if b[0] == '"' {
		raw := string(bytes.Trim(b, `"`))
		if raw == "" {
			*m = Money{}
			return nil
		}
		cents, err := ParseDecimalToCents(raw)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
		*m = Money{Cents: cents}
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, b)
	}
	*m = MoneyFromDecimal(d)
	return nil
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	if strings.Count(s, ".") > 1 {
		return 0, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return 0, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := MoneyFromDecimal(d).Cents
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseItemAmounts splits a purchase item into its sub-amounts. Sub-amounts
// are separated by commas, so each one must use a dot as decimal separator
// ("100,50" is two amounts: 100 and 50).
func ParseItemAmounts(item string) ([]Money, error) {
	if strings.TrimSpace(item) == "" {
		return nil, ErrEmptyItem
	}
	parts := strings.Split(item, ",")
	out := make([]Money, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		d, err := decimal.NewFromString(part)
		if err != nil {
			return nil, fmt.Errorf("%w: item value %q", ErrInvalidAmount, part)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("%w: item value %q is negative", ErrInvalidAmount, part)
		}
		out = append(out, MoneyFromDecimal(d))
	}
	return out, nil
}

// ParseItemTotal sums the sub-amounts of a purchase item.
func ParseItemTotal(item string) (Money, error) {
	amounts, err := ParseItemAmounts(item)
	if err != nil {
		return Money{}, err
	}
	var total Money
	for _, a := range amounts {
		total = total.Add(a)
	}
	if err := total.Validate(); err != nil {
		return Money{}, err
	}
	return total, nil
}

// DescribeItem lists the sub-amounts of a purchase item in reais
// ("R$ 100,00 + R$ 50,00"). Items that do not parse are returned as typed.
func DescribeItem(item string) string {
	amounts, err := ParseItemAmounts(item)
	if err != nil {
		return item
	}
	parts := make([]string, len(amounts))
	for i, a := range amounts {
		parts[i] = FormatBRL(a)
	}
	return strings.Join(parts, " + ")
}

// SplitEvenly divides total into n shares. Each share is the total divided
// by n truncated to cents; the last share absorbs the remainder so the
// shares always add up to total.
func SplitEvenly(total Money, n int) ([]Money, error) {
	if n < 1 {
		return nil, ErrInvalidInstallments
	}
	share := MoneyFromDecimal(total.Decimal().Div(decimal.NewFromInt(int64(n))).Truncate(2))
	out := make([]Money, n)
	for i := 0; i < n-1; i++ {
		out[i] = share
	}
	out[n-1] = total.Sub(share.Times(n - 1))
	return out, nil
}

// FormatBRL renders an amount as Brazilian reais, e.g. "R$ 1.234,56".
func FormatBRL(m Money) string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	units := strconv.FormatInt(cents/100, 10)
	var grouped strings.Builder
	for i, r := range units {
		if i > 0 && (len(units)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	s := fmt.Sprintf("R$ %s,%02d", grouped.String(), cents%100)
	if neg {
		return "-" + s
	}
	return s
}
