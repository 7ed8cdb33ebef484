package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	// OpaqueTokenSize is the number of random bytes behind verification,
	// reset and refresh tokens.
	OpaqueTokenSize = 32

	maxOpaqueTokenSize = 128
)

// NewOpaqueToken returns size random bytes encoded as unpadded base64url.
func NewOpaqueToken(size int) (string, error) {
	if size <= 0 || size > maxOpaqueTokenSize {
		return "", errors.New("invalid opaque token size")
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewCorrelationID returns a random UUIDv4 string.
func NewCorrelationID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
