// Package configstore defines the port interface for tenant configuration
// and credential-set persistence.
package configstore

import (
	"context"

	"github.com/pixelgate/pixelgate/internal/domain/tenant"
)

// Store persists tenant configs keyed by normalized domain and credential
// sets keyed by external account ID. Implementations receive already
// normalized domains; normalization is the caller's responsibility.
type Store interface {
	// GetConfig returns the config for the given normalized domain.
	// Returns domain.ErrNotFound for unknown tenants.
	GetConfig(ctx context.Context, domainKey string) (*tenant.Config, error)

	// UpsertConfig creates or updates a config keyed by its domain.
	UpsertConfig(ctx context.Context, cfg *tenant.Config) (*tenant.Config, error)

	// GetCredential returns the credential set with the given account ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetCredential(ctx context.Context, accountID string) (*tenant.CredentialSet, error)

	// UpsertCredential creates or updates a credential set keyed by its
	// account ID. An empty AccessToken on update must not erase a stored
	// token, and an empty DisplayName must not erase a stored name.
	UpsertCredential(ctx context.Context, cs *tenant.CredentialSet) (*tenant.CredentialSet, error)
}
