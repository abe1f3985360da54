// Package util contains small helpers shared by several packages.
package util

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
)

var saltField = regexp.MustCompile(`"salt"\s*:\s*"[^"]*"`)

// RandomBytes returns n bytes read from crypto/rand. It panics if the system
// random source fails, since no salt or key may be built without it.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// TrimHex trims the '0x' prefix from a hex string.
func TrimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// DecodeHex decodes a hex string with or without the '0x' prefix.
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(TrimHex(s))
}

// RedactSalt returns the JSON document data as a string with the value of
// every "salt" field replaced, so it can be logged.
func RedactSalt(data []byte) string {
	return string(saltField.ReplaceAll(data, []byte(`"salt":"<redacted>"`)))
}
