// Package event defines the inbound and normalized event domain entities.
package event

import "time"

// SourceTrust classifies where an inbound event came from.
type SourceTrust string

const (
	// TrustClient marks events received from the untrusted storefront sandbox.
	TrustClient SourceTrust = "untrusted-client"
	// TrustWebhook marks events received through a verified platform webhook.
	TrustWebhook SourceTrust = "verified-webhook"
)

// Transport identifies which ingestion path an event arrived on.
type Transport string

const (
	TransportQuery   Transport = "query"
	TransportBeacon  Transport = "beacon"
	TransportJSON    Transport = "json"
	TransportWebhook Transport = "webhook"
)

// UnknownTenant is the tenant key attached to events that carry no
// attributable domain. Such events are still logged, never dropped.
const UnknownTenant = "unknown"

// Inbound is a platform-native event as received, before normalization.
// It is ephemeral and never persisted in this shape.
type Inbound struct {
	TenantKey  string
	Name       string
	OccurredAt time.Time
	RawPayload map[string]any
	Transport  Transport
	Trust      SourceTrust
}

// Normalized is an event reshaped into the conversions API taxonomy.
type Normalized struct {
	StandardName   string            `json:"event_name"`
	OccurredAt     int64             `json:"event_time"`
	IdentityHashes map[string]string `json:"user_data,omitempty"`
	Attributes     map[string]any    `json:"custom_data,omitempty"`
}
