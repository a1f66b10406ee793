package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Sign computes the base64-encoded HMAC-SHA256 signature the platform would
// attach to the given body. Exported for tests and the send-test-event tool.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64Digest(mac.Sum(nil))
}

func base64Digest(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return header[len(prefix):]
	}
	return header
}
