// Package middleware provides HTTP middleware for authenticating callers.
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/pixelgate/pixelgate/internal/metrics"
)

// SignatureHeader carries the platform webhook signature: the base64-encoded
// HMAC-SHA256 digest of the raw request body.
const SignatureHeader = "X-Signature"

// maxWebhookBody bounds how much of a webhook body is read for verification.
const maxWebhookBody = 1 << 20 // 1 MB

// WebhookHMAC returns middleware that verifies the platform webhook
// signature over the exact raw body bytes before any handler parses them.
// The secret is fetched per request so config hot-reload takes effect
// without restarting. Missing header, missing secret, or digest mismatch
// all fail closed with 401; the body is never handed to a JSON parser in
// those cases.
func WebhookHMAC(secret func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := secret()
			if key == "" {
				metrics.WebhooksRejected.Inc()
				http.Error(w, `{"error":"webhook secret not configured"}`, http.StatusUnauthorized)
				return
			}

			sig := r.Header.Get(SignatureHeader)
			if sig == "" {
				metrics.WebhooksRejected.Inc()
				http.Error(w, `{"error":"missing webhook signature"}`, http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				metrics.WebhooksRejected.Inc()
				http.Error(w, `{"error":"unreadable body"}`, http.StatusUnauthorized)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verifyHMAC(body, sig, key) {
				metrics.WebhooksRejected.Inc()
				http.Error(w, `{"error":"invalid webhook signature"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// verifyHMAC checks a base64-encoded HMAC-SHA256 signature in constant time.
func verifyHMAC(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := base64Digest(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// AdminToken returns middleware that guards the admin surface with a static
// bearer token compared in constant time.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, `{"error":"admin token not configured"}`, http.StatusServiceUnavailable)
				return
			}

			got := bearerToken(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
