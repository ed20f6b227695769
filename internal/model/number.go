package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Number is an upstream numeric field. Upstreams send numbers, numeric strings, or null;
// Valid is false when the field was null or absent.
type Number struct {
	decimal.NullDecimal
}

// NewNumber returns a valid Number holding v.
func NewNumber(v float64) Number {
	return Number{decimal.NewNullDecimal(decimal.NewFromFloat(v))}
}

// Float returns the value as float64, 0 when invalid.
func (n Number) Float() float64 {
	if !n.Valid {
		return 0
	}
	f, _ := n.Decimal.Float64()
	return f
}

// UnmarshalJSON accepts 1.5, "1.5" and null.
func (n *Number) UnmarshalJSON(data []byte) error {
	if string(data) == `""` {
		n.Valid = false
		return nil
	}
	return n.NullDecimal.UnmarshalJSON(data)
}

// MarshalJSON writes the value as a JSON number, or null when invalid.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float())
}
