package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/domain/tenant"
)

// Store implements the configstore and eventlog ports over PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- configstore.Store ---

func (s *Store) GetConfig(ctx context.Context, domainKey string) (*tenant.Config, error) {
	var cfg tenant.Config
	var credID *string
	err := s.pool.QueryRow(ctx,
		`SELECT domain, gateway_enabled, credential_set_id, created_at, updated_at
		 FROM tenant_configs WHERE domain = $1`, domainKey,
	).Scan(&cfg.Domain, &cfg.GatewayEnabled, &credID, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get config %s: %w", domainKey, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get config %s: %w", domainKey, err)
	}
	if credID != nil {
		cfg.CredentialSetID = *credID
	}
	return &cfg, nil
}

func (s *Store) UpsertConfig(ctx context.Context, cfg *tenant.Config) (*tenant.Config, error) {
	var out tenant.Config
	var credID *string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tenant_configs (domain, gateway_enabled, credential_set_id)
		 VALUES ($1, $2, NULLIF($3, ''))
		 ON CONFLICT (domain) DO UPDATE SET
		   gateway_enabled   = EXCLUDED.gateway_enabled,
		   credential_set_id = COALESCE(EXCLUDED.credential_set_id, tenant_configs.credential_set_id),
		   updated_at        = now()
		 RETURNING domain, gateway_enabled, credential_set_id, created_at, updated_at`,
		cfg.Domain, cfg.GatewayEnabled, cfg.CredentialSetID,
	).Scan(&out.Domain, &out.GatewayEnabled, &credID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert config %s: %w", cfg.Domain, err)
	}
	if credID != nil {
		out.CredentialSetID = *credID
	}
	return &out, nil
}

func (s *Store) GetCredential(ctx context.Context, accountID string) (*tenant.CredentialSet, error) {
	var cs tenant.CredentialSet
	var token, name *string
	err := s.pool.QueryRow(ctx,
		`SELECT account_id, access_token, display_name, created_at, updated_at
		 FROM credential_sets WHERE account_id = $1`, accountID,
	).Scan(&cs.AccountID, &token, &name, &cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get credential %s: %w", accountID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get credential %s: %w", accountID, err)
	}
	if token != nil {
		cs.AccessToken = *token
	}
	if name != nil {
		cs.DisplayName = *name
	}
	return &cs, nil
}

func (s *Store) UpsertCredential(ctx context.Context, cs *tenant.CredentialSet) (*tenant.CredentialSet, error) {
	var out tenant.CredentialSet
	var token, name *string
	// Blank token or display name never erase stored values; a new token is
	// the credential-rotation path.
	err := s.pool.QueryRow(ctx,
		`INSERT INTO credential_sets (account_id, access_token, display_name)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		 ON CONFLICT (account_id) DO UPDATE SET
		   access_token = COALESCE(NULLIF(EXCLUDED.access_token, ''), credential_sets.access_token),
		   display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), credential_sets.display_name),
		   updated_at   = now()
		 RETURNING account_id, access_token, display_name, created_at, updated_at`,
		cs.AccountID, cs.AccessToken, cs.DisplayName,
	).Scan(&out.AccountID, &token, &name, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert credential %s: %w", cs.AccountID, err)
	}
	if token != nil {
		out.AccessToken = *token
	}
	if name != nil {
		out.DisplayName = *name
	}
	return &out, nil
}

// --- eventlog.Store ---

func (s *Store) Append(ctx context.Context, rec *event.LogRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO event_log (id, tenant_key, event_name, status, response_summary, error_detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
		rec.ID, rec.TenantKey, rec.StandardName, string(rec.Status), rec.ResponseSummary, rec.ErrorDetail, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event log: %w", err)
	}
	return nil
}

const logColumns = `id, tenant_key, event_name, status, response_summary, COALESCE(error_detail, ''), created_at`

func scanRecord(scanner interface{ Scan(dest ...any) error }, rec *event.LogRecord) error {
	return scanner.Scan(&rec.ID, &rec.TenantKey, &rec.StandardName, &rec.Status,
		&rec.ResponseSummary, &rec.ErrorDetail, &rec.CreatedAt)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]event.LogRecord, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM event_log ORDER BY created_at DESC LIMIT $1`, logColumns), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *Store) ListByTenant(ctx context.Context, tenantKey string, limit int) ([]event.LogRecord, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM event_log WHERE tenant_key = $1 ORDER BY created_at DESC LIMIT $2`, logColumns),
		tenantKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", tenantKey, err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]event.LogRecord, error) {
	var out []event.LogRecord
	for rows.Next() {
		var rec event.LogRecord
		if err := scanRecord(rows, &rec); err != nil {
			return nil, fmt.Errorf("scan log record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
