package organization

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	// DefaultTokenBytes yields a 43 character token.
	DefaultTokenBytes = 32
	MinTokenBytes     = 16
	// MaxTokenLength is the width of the stored token column.
	MaxTokenLength = 64
)

// TokenGenerator produces invitation tokens.
type TokenGenerator func() (string, error)

// TokenLength is the encoded length of a token built from n random bytes.
func TokenLength(n int) int {
	return base64.RawURLEncoding.EncodedLen(n)
}

// NewTokenGenerator returns a generator of URL-safe tokens built from n
// bytes of crypto/rand output.
func NewTokenGenerator(n int) (TokenGenerator, error) {
	if n < MinTokenBytes {
		return nil, fmt.Errorf("token size %d bytes is below the minimum of %d", n, MinTokenBytes)
	}
	if TokenLength(n) > MaxTokenLength {
		return nil, fmt.Errorf("token size %d bytes encodes to more than %d characters", n, MaxTokenLength)
	}
	return func() (string, error) {
		return GenerateToken(n)
	}, nil
}

// GenerateToken returns n random bytes encoded as unpadded base64url.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
