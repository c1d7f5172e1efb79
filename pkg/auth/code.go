package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// CodeByteSize is the entropy of generated confirmation and reset codes.
// 16 random bytes hex-encoded yields a 32 character URL-safe string.
const CodeByteSize = 16

// GenerateCode produces a fresh single-use confirmation or reset code.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeByteSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
