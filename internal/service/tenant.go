package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/domain/tenant"
	"github.com/pixelgate/pixelgate/internal/port/cache"
	"github.com/pixelgate/pixelgate/internal/port/configstore"
)

// Configuration lookup statuses returned to the client bootstrap.
const (
	StatusPixelPresent = "already-present"
	StatusNoPixel      = "shop_exists_no_pixel"
)

// TenantService resolves and maintains per-storefront gateway configuration.
// All domain keys are normalized on the way in; the store only ever sees
// canonical keys.
type TenantService struct {
	store    configstore.Store
	cache    cache.Cache
	cacheTTL time.Duration
	sf       singleflight.Group
}

// NewTenantService creates a TenantService. cache may be nil to disable the
// resolution cache.
func NewTenantService(store configstore.Store, c cache.Cache, ttl time.Duration) *TenantService {
	return &TenantService{store: store, cache: c, cacheTTL: ttl}
}

// Resolve returns the config and credential set for a raw tenant domain.
// Unknown tenants return domain.ErrNotFound; that is an expected state for
// new or uninstalled storefronts, not an error condition worth logging.
// Concurrent resolutions of the same key are collapsed via singleflight.
func (s *TenantService) Resolve(ctx context.Context, rawDomain string) (*tenant.Resolved, error) {
	key := tenant.NormalizeDomain(rawDomain)
	if key == "" {
		return nil, fmt.Errorf("empty tenant domain: %w", domain.ErrNotFound)
	}

	if s.cache != nil {
		if data, ok, _ := s.cache.Get(ctx, cacheKey(key)); ok {
			var r tenant.Resolved
			if err := json.Unmarshal(data, &r); err == nil {
				return &r, nil
			}
		}
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		return s.resolveUncached(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	r := v.(*tenant.Resolved)

	if s.cache != nil {
		if data, err := json.Marshal(r); err == nil {
			_ = s.cache.Set(ctx, cacheKey(key), data, s.cacheTTL)
		}
	}
	return r, nil
}

func (s *TenantService) resolveUncached(ctx context.Context, key string) (*tenant.Resolved, error) {
	cfg, err := s.store.GetConfig(ctx, key)
	if err != nil {
		return nil, err
	}

	r := &tenant.Resolved{Config: *cfg}
	if cfg.CredentialSetID != "" {
		cred, err := s.store.GetCredential(ctx, cfg.CredentialSetID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		r.Credential = cred
	}
	return r, nil
}

// UpsertTenant creates or updates a tenant config, keyed by normalized
// domain. Idempotent; an existing config keeps its enabled state unless a
// credential link changes it.
func (s *TenantService) UpsertTenant(ctx context.Context, rawDomain, credentialSetID string) (*tenant.Config, error) {
	key := tenant.NormalizeDomain(rawDomain)
	if key == "" {
		return nil, fmt.Errorf("%w: tenant domain is required", domain.ErrValidation)
	}

	cfg := tenant.Config{Domain: key, CredentialSetID: credentialSetID}
	if existing, err := s.store.GetConfig(ctx, key); err == nil {
		cfg.GatewayEnabled = existing.GatewayEnabled
		if credentialSetID == "" {
			cfg.CredentialSetID = existing.CredentialSetID
		}
	}

	out, err := s.store.UpsertConfig(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, key)
	return out, nil
}

// LinkCredential points a tenant at a credential set. The gateway is enabled
// only when the set already has an access token; otherwise the tenant stays
// disabled and pending is true. Pending is an expected onboarding state, not
// an error.
func (s *TenantService) LinkCredential(ctx context.Context, rawDomain, credentialSetID string) (cfg *tenant.Config, pending bool, err error) {
	key := tenant.NormalizeDomain(rawDomain)
	if key == "" {
		return nil, false, fmt.Errorf("%w: tenant domain is required", domain.ErrValidation)
	}

	cred, err := s.store.GetCredential(ctx, credentialSetID)
	if err != nil {
		return nil, false, fmt.Errorf("link credential %s: %w", credentialSetID, err)
	}

	next := tenant.Config{
		Domain:          key,
		CredentialSetID: cred.AccountID,
		GatewayEnabled:  cred.Activated(),
	}

	out, err := s.store.UpsertConfig(ctx, &next)
	if err != nil {
		return nil, false, err
	}
	s.invalidate(ctx, key)
	return out, !cred.Activated(), nil
}

// FindOrCreateCredential upserts a credential set by external account ID.
// Supplying a new access token is the rotation path; blank token or display
// name never erase stored values.
//
// Cached Resolved entries of tenants referencing this set are left alone:
// the store keys them by domain, and rotation tolerates a stale read for at
// most one cache TTL. A rotation followed by LinkCredential is visible
// immediately, since linking invalidates the tenant's entry.
func (s *TenantService) FindOrCreateCredential(ctx context.Context, accountID, accessToken, displayName string) (*tenant.CredentialSet, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", domain.ErrValidation)
	}
	return s.store.UpsertCredential(ctx, &tenant.CredentialSet{
		AccountID:   accountID,
		AccessToken: accessToken,
		DisplayName: displayName,
	})
}

// Disable turns the gateway off for a tenant, keeping its config and
// credential link. Used when the platform reports the app uninstalled.
func (s *TenantService) Disable(ctx context.Context, rawDomain string) error {
	key := tenant.NormalizeDomain(rawDomain)

	existing, err := s.store.GetConfig(ctx, key)
	if err != nil {
		return err
	}
	existing.GatewayEnabled = false
	if _, err := s.store.UpsertConfig(ctx, existing); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

// ConfigStatus reports what the client bootstrap needs to know: the pixel
// (account) ID if one is linked, and whether configuration is complete.
func (s *TenantService) ConfigStatus(ctx context.Context, rawDomain string) (pixelID, status string, err error) {
	r, err := s.Resolve(ctx, rawDomain)
	if err != nil {
		return "", "", err
	}
	if r.Config.CredentialSetID == "" {
		return "", StatusNoPixel, nil
	}
	return r.Config.CredentialSetID, StatusPixelPresent, nil
}

func (s *TenantService) invalidate(ctx context.Context, key string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, cacheKey(key))
	}
}

func cacheKey(domainKey string) string {
	return "tenant:" + domainKey
}
