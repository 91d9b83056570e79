package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateShareCode(t *testing.T) {
	testCases := []struct {
		name        string
		code        string
		expectedErr error // Expected error (nil if valid)
	}{
		// Valid cases
		{"Valid Code", "483920", nil},
		{"All Zeros", "000000", nil},
		{"Leading Zeros", "000042", nil},
		{"All Nines", "999999", nil},

		// Invalid cases - Length
		{"Empty Code", "", ErrInvalidCode},
		{"Too Short", "12345", ErrInvalidCode},
		{"Too Long", "1234567", ErrInvalidCode},
		{"Single Digit", "7", ErrInvalidCode},

		// Invalid cases - Characters
		{"Letters", "abcdef", ErrInvalidCode},
		{"Mixed Digits And Letters", "12345a", ErrInvalidCode},
		{"Embedded Space", "123 56", ErrInvalidCode},
		{"Leading Space", " 123456", ErrInvalidCode},
		{"Trailing Newline", "123456\n", ErrInvalidCode},
		{"Negative Number", "-12345", ErrInvalidCode},
		{"Unicode Digits", "１２３４５６", ErrInvalidCode}, // Fullwidth digits are not ASCII
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateShareCode(tc.code)
			assert.Equal(t, tc.expectedErr, err, "Test case failed: "+tc.name)
		})
	}
}
