package utils

import (
	"errors"
	"regexp"
)

// CodeLength is the number of decimal digits in a share code.
const CodeLength = 6

// Share code validation errors
var (
	ErrInvalidCode = errors.New("share code must be exactly 6 digits")
)

// shareCodePattern matches a full share code. Leading zeros are significant,
// so codes are handled as strings everywhere and never parsed as integers.
var shareCodePattern = regexp.MustCompile(`^[0-9]{6}$`)

// ValidateShareCode checks a user-supplied code before any store lookup.
// Requirements: exactly 6 ASCII decimal digits, nothing else.
func ValidateShareCode(code string) error {
	if !shareCodePattern.MatchString(code) {
		return ErrInvalidCode
	}
	return nil
}
