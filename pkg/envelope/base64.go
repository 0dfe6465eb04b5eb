package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
)

var base64Grammar = regexp.MustCompile(`^([A-Za-z0-9+/]{4})*([A-Za-z0-9+/]{3}=|[A-Za-z0-9+/]{2}==)?$`)

// EncodeText base64-encodes the UTF-8 bytes of s.
func EncodeText(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// EncodeBytes base64-encodes b.
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// IsBase64 reports whether s matches the padded standard base64 grammar.
// The empty string matches.
func IsBase64(s string) bool {
	return base64Grammar.MatchString(s)
}

// Canonicalize passes s through when it already matches the base64 grammar and encodes it otherwise.
func Canonicalize(s string) string {
	if IsBase64(s) {
		return s
	}
	return EncodeText(s)
}

// RandomBase64 returns n cryptographically secure random bytes, base64-encoded.
func RandomBase64(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("%s - byte count must be positive, got %d", logPrefix, n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s - failed to create secure bytes: %w", logPrefix, err)
	}
	return EncodeBytes(buf), nil
}
