package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const orderNoAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderNo returns "O" + yyyymmddHHMMSS + 4 random characters from [A-Z0-9].
func NewOrderNo(now time.Time) (string, error) {
	suffix, err := randomString(orderNoAlphabet, 4)
	if err != nil {
		return "", err
	}
	return "O" + now.Format("20060102150405") + suffix, nil
}

// NewPickupCode returns a uniformly random 6-digit code.
func NewPickupCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate pickup code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ValidPickupCode reports whether code is exactly six ASCII digits.
func ValidPickupCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func randomString(alphabet string, n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random suffix: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}
