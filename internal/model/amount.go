package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a money value held to cents. It travels as a JSON string with
// two decimals ("150.00") and is stored as DECIMAL(10,2). JSON input may be
// a number or a numeric string.
type Amount struct {
	decimal.Decimal
}

// NewAmount rounds d to cents.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d.Round(2)}
}

// ParseAmount parses a decimal string into an Amount without rounding. The
// caller decides what to do with sub-cent input.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{Decimal: d}, nil
}

// MustAmount is ParseAmount for constants and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return NewAmount(a.Decimal)
}

// IsCents reports whether the value has no fractional part below one cent.
func (a Amount) IsCents() bool {
	return a.Decimal.Equal(a.Decimal.Round(2))
}

func (a Amount) String() string {
	return a.Decimal.StringFixed(2)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Decimal.StringFixed(2) + `"`), nil
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return a.Decimal.StringFixed(2), nil
}
