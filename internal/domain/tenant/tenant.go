// Package tenant defines the per-storefront configuration domain model.
package tenant

import "time"

// Config holds the gateway configuration for one storefront, keyed by its
// normalized domain. A config is created on first contact and only ever
// disabled, never deleted.
type Config struct {
	Domain          string    `json:"domain"`
	GatewayEnabled  bool      `json:"gateway_enabled"`
	CredentialSetID string    `json:"credential_set_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CredentialSet is an external ad-conversion account plus its access token.
// Several tenant configs may reference the same set. AccessToken may be empty
// while the account is registered but not yet activated.
type CredentialSet struct {
	AccountID   string    `json:"account_id"`
	AccessToken string    `json:"access_token,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Activated reports whether the credential set has an access token and can
// be used for dispatch.
func (c CredentialSet) Activated() bool {
	return c.AccessToken != ""
}

// Resolved pairs a tenant config with its credential set, if any.
type Resolved struct {
	Config     Config
	Credential *CredentialSet
}

// Active reports whether events for this tenant may be forwarded upstream:
// the gateway is enabled and the referenced credential set has a token.
func (r Resolved) Active() bool {
	return r.Config.GatewayEnabled && r.Credential != nil && r.Credential.Activated()
}
