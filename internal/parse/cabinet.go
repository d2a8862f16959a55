package parse

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxCabinetCodeLen is the longest identifier a cabinet may carry.
const MaxCabinetCodeLen = 20

// CabinetCode is a normalized cabinet identifier split for natural ordering.
// Bank is everything before the trailing digit run, minus separators.
type CabinetCode struct {
	Raw      string
	Bank     string
	Slot     int
	Numbered bool
}

// ParseCabinetCode accepts any non-empty identifier of up to 20 characters,
// such as "A001", "WL-A-001" or "STN1-A01". It is trimmed and upper-cased.
func ParseCabinetCode(raw string) (CabinetCode, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return CabinetCode{}, fmt.Errorf("empty cabinet id")
	}
	if utf8.RuneCountInString(s) > MaxCabinetCodeLen {
		return CabinetCode{}, fmt.Errorf("cabinet id too long: %q", raw)
	}
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return CabinetCode{}, fmt.Errorf("cabinet id has control characters: %q", raw)
	}

	code := CabinetCode{Raw: s, Bank: s}
	digits := strings.TrimRightFunc(s, isDigit)
	if tail := s[len(digits):]; tail != "" && len(tail) <= 9 {
		slot, err := strconv.Atoi(tail)
		if err == nil {
			code.Bank = strings.TrimRight(digits, "-_ ")
			code.Slot = slot
			code.Numbered = true
		}
	}
	return code, nil
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// Less orders codes by bank then slot number, so A2 sorts before A10.
func (c CabinetCode) Less(o CabinetCode) bool {
	if c.Bank != o.Bank {
		return c.Bank < o.Bank
	}
	if c.Numbered != o.Numbered {
		return c.Numbered
	}
	if c.Slot != o.Slot {
		return c.Slot < o.Slot
	}
	return c.Raw < o.Raw
}

// CompareCabinetCodes orders identifiers naturally. Invalid ones sort last.
func CompareCabinetCodes(a, b string) int {
	ca, errA := ParseCabinetCode(a)
	cb, errB := ParseCabinetCode(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return 1
	case errB != nil:
		return -1
	case ca.Less(cb):
		return -1
	case cb.Less(ca):
		return 1
	}
	return 0
}
