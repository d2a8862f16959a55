package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is a monetary amount in the smallest currency unit.
// It is stored as an integer column and rendered as a two-decimal string in JSON.
type Cents int64

// String formats the amount as "12.34".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MulHours returns the amount charged for the given number of hours at rate c.
func (c Cents) MulHours(hours float64) Cents {
	return Cents(math.Round(float64(c) * hours))
}

// MarshalJSON renders the amount as a decimal string.
func (c Cents) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts either a JSON number or a decimal string.
func (c *Cents) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := ParseCents(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCents parses a decimal amount such as "2", "2.5" or "2.00".
func ParseCents(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return Cents(math.Round(f * 100)), nil
}
