package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a signed decimal transaction amount. An amount that could not be
// parsed stays in the record with Invalid set so callers can still count it.
type Amount struct {
	decimal.Decimal
	Invalid bool
}

// NewAmount wraps an already-parsed decimal
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// ParseAmount parses an amount string, handling currency symbols, thousands
// separators and accounting-style parentheses for negatives.
func ParseAmount(s string) Amount {
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	// (100.00) -> -100.00
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.TrimSpace(s[1:len(s)-1])
	}

	if s == "" {
		return Amount{Invalid: true}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{Invalid: true}
	}
	return Amount{Decimal: d}
}

// MustAmount parses s and panics if it is not a valid amount
func MustAmount(s string) Amount {
	a := ParseAmount(s)
	if a.Invalid {
		panic(fmt.Sprintf("models: invalid amount %q", s))
	}
	return a
}

// Magnitude returns abs(amount), or zero for an invalid amount
func (a Amount) Magnitude() decimal.Decimal {
	if a.Invalid {
		return decimal.Zero
	}
	return a.Abs()
}

// UnmarshalJSON accepts JSON numbers and strings. Malformed values never fail
// the surrounding document; they produce an Invalid amount instead.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*a = Amount{Invalid: true}
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	*a = ParseAmount(s)
	return nil
}

// MarshalJSON writes invalid amounts as null
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.Invalid {
		return []byte("null"), nil
	}
	return a.Decimal.MarshalJSON()
}
