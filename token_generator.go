package passwordless

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultTokenLength is the width of generated callback token keys
const DefaultTokenLength = 6

// GenerateNumericToken returns a zero padded numeric key of DefaultTokenLength digits.
func GenerateNumericToken() (string, error) {
	return GenerateNumericTokenOfLength(DefaultTokenLength)
}

// GenerateNumericTokenOfLength returns a zero padded numeric key of the given width.
func GenerateNumericTokenOfLength(length int) (string, error) {
	if length <= 0 {
		length = DefaultTokenLength
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate numeric token: %w", err)
	}

	return fmt.Sprintf("%0*d", length, n), nil
}

// NumericKeyGenerator returns a KeyGenerator producing keys of the given width.
func NumericKeyGenerator(length int) KeyGenerator {
	return func() (string, error) {
		return GenerateNumericTokenOfLength(length)
	}
}
