// Package memory provides in-memory implementations of the configstore and
// eventlog ports, used by tests and the "memory" store driver.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/domain/tenant"
)

// Store is a mutex-guarded in-memory configstore.Store and eventlog.Store.
type Store struct {
	mu      sync.RWMutex
	configs map[string]tenant.Config
	creds   map[string]tenant.CredentialSet
	records []event.LogRecord
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		configs: make(map[string]tenant.Config),
		creds:   make(map[string]tenant.CredentialSet),
	}
}

func (s *Store) GetConfig(_ context.Context, domainKey string) (*tenant.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[domainKey]
	if !ok {
		return nil, fmt.Errorf("config %s: %w", domainKey, domain.ErrNotFound)
	}
	return &cfg, nil
}

func (s *Store) UpsertConfig(_ context.Context, cfg *tenant.Config) (*tenant.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored, exists := s.configs[cfg.Domain]
	if !exists {
		stored = tenant.Config{Domain: cfg.Domain, CreatedAt: now}
	}
	stored.GatewayEnabled = cfg.GatewayEnabled
	if cfg.CredentialSetID != "" {
		stored.CredentialSetID = cfg.CredentialSetID
	}
	stored.UpdatedAt = now

	s.configs[cfg.Domain] = stored
	return &stored, nil
}

func (s *Store) GetCredential(_ context.Context, accountID string) (*tenant.CredentialSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.creds[accountID]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", accountID, domain.ErrNotFound)
	}
	return &cs, nil
}

func (s *Store) UpsertCredential(_ context.Context, cs *tenant.CredentialSet) (*tenant.CredentialSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored, exists := s.creds[cs.AccountID]
	if !exists {
		stored = tenant.CredentialSet{AccountID: cs.AccountID, CreatedAt: now}
	}
	// Rotation rules: blank fields never erase stored values.
	if cs.AccessToken != "" {
		stored.AccessToken = cs.AccessToken
	}
	if cs.DisplayName != "" {
		stored.DisplayName = cs.DisplayName
	}
	stored.UpdatedAt = now

	s.creds[cs.AccountID] = stored
	return &stored, nil
}

func (s *Store) Append(_ context.Context, rec *event.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.records = append(s.records, stored)
	return nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]event.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastN(s.records, limit, func(event.LogRecord) bool { return true }), nil
}

func (s *Store) ListByTenant(_ context.Context, tenantKey string, limit int) ([]event.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastN(s.records, limit, func(r event.LogRecord) bool { return r.TenantKey == tenantKey }), nil
}

// lastN collects up to limit matching records, newest first.
func lastN(records []event.LogRecord, limit int, match func(event.LogRecord) bool) []event.LogRecord {
	var out []event.LogRecord
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		if match(records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}
