package webhook

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // the sender signs with HMAC-SHA1
	"encoding/hex"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA1 of body keyed by secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header carries a valid signature for body.
// An optional "sha1=" prefix is accepted and hex comparison is case-insensitive.
// A missing header is rejected without computing the HMAC.
func VerifySignature(secret []byte, header string, body []byte) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	header = strings.TrimPrefix(strings.ToLower(header), "sha1=")

	expected := Sign(secret, body)
	return hmac.Equal([]byte(header), []byte(expected))
}
