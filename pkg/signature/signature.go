// Package signature computes and verifies the HMAC-SHA256 webhook
// signatures carried in the X-Signature header.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex-encoded HMAC-SHA256 digest of payload under secret
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks a hex-encoded signature against the exact raw bytes that
// were received on the wire. Re-serializing a parsed body can change key
// order, whitespace or number formatting, so callers must pass the
// original bytes. A malformed or truncated signature is a verification
// failure, never an error.
func Verify(providedHex string, payload []byte, secret string) bool {
	provided, err := hex.DecodeString(providedHex)
	if err != nil {
		return false
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expected := h.Sum(nil)

	// hmac.Equal is constant-time; it also rejects length mismatches
	return hmac.Equal(provided, expected)
}
