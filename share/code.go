package share

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/secureshare/secureshare/utils"
)

// codeSpace is the number of distinct share codes, 10^6.
const codeSpace = 1_000_000

// maxRandomDraws bounds the blind-draw phase of code generation. Past this
// many collisions the store is dense enough that a linear sweep is cheaper
// than more draws.
const maxRandomDraws = 128

// ErrCodeSpaceExhausted is returned when every possible code is taken.
var ErrCodeSpaceExhausted = errors.New("share code space exhausted")

// GenerateCode returns a share code absent from existing. Codes are drawn
// uniformly from the 6-digit space; leading zeros are kept, so the result
// is always exactly utils.CodeLength characters. Generation fails with
// ErrCodeSpaceExhausted only when every code is in use.
func GenerateCode(existing map[string]struct{}) (string, error) {
	if len(existing) >= codeSpace {
		return "", ErrCodeSpaceExhausted
	}

	space := big.NewInt(codeSpace)
	for i := 0; i < maxRandomDraws; i++ {
		n, err := rand.Int(rand.Reader, space)
		if err != nil {
			return "", fmt.Errorf("reading random source: %w", err)
		}
		code := formatCode(n.Int64())
		if _, taken := existing[code]; !taken {
			return code, nil
		}
	}

	// Nearly full store: walk the space from a random offset so generation
	// still terminates and the picked code stays unpredictable.
	offset, err := rand.Int(rand.Reader, space)
	if err != nil {
		return "", fmt.Errorf("reading random source: %w", err)
	}
	for i := int64(0); i < codeSpace; i++ {
		code := formatCode((offset.Int64() + i) % codeSpace)
		if _, taken := existing[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func formatCode(n int64) string {
	return fmt.Sprintf("%0*d", utils.CodeLength, n)
}
