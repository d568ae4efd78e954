package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const opaqueTokenSize = 32

// ErrMalformedToken is returned when an opaque token does not decode to the expected size.
var ErrMalformedToken = errors.New("malformed opaque token")

// NewOpaqueToken returns a random base64url token and the hex sha256 of its raw bytes.
// Only the hash is meant to be persisted.
func NewOpaqueToken() (string, string, error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), hashBytes(raw[:]), nil
}

// HashOpaqueToken decodes a token produced by NewOpaqueToken and returns its storage hash.
func HashOpaqueToken(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrMalformedToken
	}
	if len(raw) != opaqueTokenSize {
		return "", ErrMalformedToken
	}
	return hashBytes(raw), nil
}

// NewHexSecret returns n random bytes hex encoded, the shape used by emailed links.
func NewHexSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashString returns the hex sha256 of s.
func HashString(s string) string {
	return hashBytes([]byte(s))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
