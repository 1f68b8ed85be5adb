// Package teamcode generates and formats the 9-digit codes patients use to
// find a care team. Codes are stored and transmitted ungrouped; Format renders
// the human-readable grouped form used at display boundaries.
package teamcode

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// Length is the number of digits in a team code.
const Length = 9

// ErrInvalidCode signals a value that is not a 9-digit numeric code.
var ErrInvalidCode = errors.New("teamcode: code must be 9 digits")

var codeSpace = big.NewInt(1_000_000_000)

// Generate returns a random 9-digit code, left-padded with zeros.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}

	digits := n.String()
	if pad := Length - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	return digits, nil
}

// Normalize strips grouping characters and whitespace from a user-entered code.
func Normalize(code string) string {
	var b strings.Builder
	b.Grow(Length)
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Valid reports whether the value is a well-formed ungrouped team code.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Format renders a stored code in the grouped "DDD - DDD - DDD" display form.
// Invalid input is returned unchanged.
func Format(code string) string {
	if !Valid(code) {
		return code
	}
	return code[0:3] + " - " + code[3:6] + " - " + code[6:9]
}
