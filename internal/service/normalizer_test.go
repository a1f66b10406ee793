package service_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/service"
)

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestNormalizeEventCheckoutStarted(t *testing.T) {
	in := &event.Inbound{
		Name:       "checkout_started",
		OccurredAt: time.Unix(1700000000, 0),
		RawPayload: map[string]any{"value": "19.99", "currency": "USD"},
	}

	out := service.NormalizeEvent(in)

	if out.StandardName != event.StdInitiateCheckout {
		t.Fatalf("expected InitiateCheckout, got %s", out.StandardName)
	}
	if out.OccurredAt != 1700000000 {
		t.Fatalf("expected unix seconds 1700000000, got %d", out.OccurredAt)
	}
	if got, ok := out.Attributes["value"].(float64); !ok || got != 19.99 {
		t.Fatalf("expected numeric value 19.99, got %v", out.Attributes["value"])
	}
	if out.Attributes["currency"] != "USD" {
		t.Fatalf("expected currency USD, got %v", out.Attributes["currency"])
	}
}

func TestNormalizeEventLiftsCustomData(t *testing.T) {
	in := &event.Inbound{
		Name: "checkout_started",
		RawPayload: map[string]any{
			"event_name":  "checkout_started",
			"custom_data": map[string]any{"value": "19.99", "currency": "EUR"},
		},
	}

	out := service.NormalizeEvent(in)

	if out.StandardName != event.StdInitiateCheckout {
		t.Fatalf("expected InitiateCheckout, got %s", out.StandardName)
	}
	if got, ok := out.Attributes["value"].(float64); !ok || got != 19.99 {
		t.Fatalf("nested value must surface numerically, got %v", out.Attributes["value"])
	}
	if out.Attributes["currency"] != "EUR" {
		t.Fatalf("nested currency must surface, got %v", out.Attributes["currency"])
	}
	if _, ok := out.Attributes["custom_data"]; ok {
		t.Fatal("custom_data envelope must not appear as an attribute")
	}
}

func TestNormalizeEventHashesIdentity(t *testing.T) {
	in := &event.Inbound{
		Name: "checkout_completed",
		RawPayload: map[string]any{
			"email": "  Jane.Doe@Example.COM ",
			"phone": "+15550001111",
		},
	}

	out := service.NormalizeEvent(in)

	if got := out.IdentityHashes["em"]; got != sha("jane.doe@example.com") {
		t.Fatalf("email must be trimmed, lowercased, then hashed; got %s", got)
	}
	if got := out.IdentityHashes["ph"]; got != sha("+15550001111") {
		t.Fatalf("phone hash mismatch: %s", got)
	}
	if _, leaked := out.Attributes["email"]; leaked {
		t.Fatal("raw email must not appear in attributes")
	}
}

func TestNormalizeEventOmitsBlankIdentity(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"empty strings", map[string]any{"email": "", "phone": ""}},
		{"whitespace", map[string]any{"email": "   "}},
		{"null values", map[string]any{"email": nil, "phone": nil}},
		{"non-string", map[string]any{"email": 42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := service.NormalizeEvent(&event.Inbound{Name: "page_view", RawPayload: tt.payload})
			if len(out.IdentityHashes) != 0 {
				t.Fatalf("blank identity fields must be omitted, got %v", out.IdentityHashes)
			}
			for _, h := range out.IdentityHashes {
				if h == sha("") {
					t.Fatal("empty string must never be hashed and sent")
				}
			}
		})
	}
}

func TestNormalizeEventLenientValue(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{"19.99", 19.99},
		{19.99, 19.99},
		{7, 7},
		{" 12.5 ", 12.5},
		{"not-a-number", 0},
		{nil, 0},
	}

	for _, tt := range tests {
		out := service.NormalizeEvent(&event.Inbound{
			Name:       "checkout_started",
			RawPayload: map[string]any{"value": tt.in},
		})
		if got := out.Attributes["value"].(float64); got != tt.want {
			t.Errorf("value %v normalized to %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeEventUnknownNamePassesThrough(t *testing.T) {
	out := service.NormalizeEvent(&event.Inbound{Name: "newsletter_signup"})
	if out.StandardName != "newsletter_signup" {
		t.Fatalf("unknown names pass through, got %s", out.StandardName)
	}
}

func TestNormalizeEventUnknownFieldsPreserved(t *testing.T) {
	out := service.NormalizeEvent(&event.Inbound{
		Name:       "product_viewed",
		RawPayload: map[string]any{"variant_title": "Large / Blue", "shop": "x.example.com"},
	})
	if out.Attributes["variant_title"] != "Large / Blue" {
		t.Fatal("unknown payload fields must pass through to attributes")
	}
	if _, ok := out.Attributes["shop"]; ok {
		t.Fatal("envelope metadata must not leak into attributes")
	}
}

func TestNormalizeEventDefaultsTimestamp(t *testing.T) {
	before := time.Now().Unix()
	out := service.NormalizeEvent(&event.Inbound{Name: "page_view"})
	if out.OccurredAt < before {
		t.Fatalf("zero OccurredAt should default to now, got %d", out.OccurredAt)
	}
}
