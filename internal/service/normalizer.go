package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/pixelgate/pixelgate/internal/domain/event"
)

// attributeKeys are payload fields lifted into the normalized event's
// attributes under their own name. Anything else in the payload passes
// through untouched so new platform fields are forwarded, not dropped.
var attributeKeys = map[string]bool{
	"currency":      true,
	"value":         true,
	"content_ids":   true,
	"content_name":  true,
	"content_type":  true,
	"num_items":     true,
	"order_id":      true,
	"search_string": true,
}

// identity payload fields hashed into user_data. Kept out of attributes.
const (
	fieldEmail = "email"
	fieldPhone = "phone"
)

// NormalizeEvent reshapes a platform-native event into the conversions API
// taxonomy. Identity fields are hashed; blank ones are omitted entirely
// because an empty-string hash corrupts matching upstream. The value field
// is parsed leniently, defaulting to 0, so a malformed amount never rejects
// the event.
func NormalizeEvent(in *event.Inbound) *event.Normalized {
	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	out := &event.Normalized{
		StandardName: event.StandardName(in.Name),
		OccurredAt:   occurred.Unix(),
	}

	hashes := make(map[string]string)
	attrs := make(map[string]any)

	consume := func(k string, v any) {
		switch k {
		case fieldEmail:
			if h, ok := hashIdentity(v, true); ok {
				hashes["em"] = h
			}
		case fieldPhone:
			if h, ok := hashIdentity(v, false); ok {
				hashes["ph"] = h
			}
		case "value":
			attrs["value"] = lenientFloat(v)
		default:
			if attributeKeys[k] || !reservedField(k) {
				attrs[k] = v
			}
		}
	}

	for k, v := range in.RawPayload {
		// custom_data is an envelope around event attributes; its
		// contents are lifted to the same level as top-level fields.
		if k == "custom_data" {
			if m, ok := v.(map[string]any); ok {
				for ck, cv := range m {
					consume(ck, cv)
				}
				continue
			}
		}
		consume(k, v)
	}

	if len(hashes) > 0 {
		out.IdentityHashes = hashes
	}
	if len(attrs) > 0 {
		out.Attributes = attrs
	}
	return out
}

// reservedField marks payload keys that are envelope metadata, not event
// attributes.
func reservedField(k string) bool {
	switch k {
	case "shop", "shop_domain", "pixelId", "pixel_id", "event_name", "timestamp":
		return true
	}
	return false
}

// hashIdentity lowercases (emails only) and SHA-256 hashes an identity
// value. Returns ok=false for null, non-string, or blank input.
func hashIdentity(v any, lowercase bool) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if lowercase {
		s = strings.ToLower(s)
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:]), true
}

// lenientFloat accepts a number or numeric string, defaulting to 0.
func lenientFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return 0
}
