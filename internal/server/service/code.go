package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength  = 4
)

// generateSecureToken produces a cryptographically secure random string
// drawn uniformly from charset.
func generateSecureToken(charset string, length int) (string, error) {
	max := big.NewInt(int64(len(charset)))
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure: %w", err)
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

func generateCode() (string, error) {
	return generateSecureToken(codeCharset, codeLength)
}

// normalizeCode trims and upper-cases a user supplied code, returning
// ErrInvalidInput if it cannot be a share code.
func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != codeLength {
		return "", fmt.Errorf("%w: code must be %d characters", ErrInvalidInput, codeLength)
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeCharset, code[i]) < 0 {
			return "", fmt.Errorf("%w: code contains invalid character %q", ErrInvalidInput, code[i])
		}
	}
	return code, nil
}
