// Package sqlite implements the configstore and eventlog ports on a local
// SQLite file, for single-process development deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/domain/event"
	"github.com/pixelgate/pixelgate/internal/domain/tenant"
)

// Store implements the configstore and eventlog ports over SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the schema
// exists. A single connection is used; SQLite handles one writer at a time.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS tenant_configs (
    domain            TEXT PRIMARY KEY,
    gateway_enabled   INTEGER NOT NULL DEFAULT 0,
    credential_set_id TEXT,
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS credential_sets (
    account_id   TEXT PRIMARY KEY,
    access_token TEXT,
    display_name TEXT,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS event_log (
    id               TEXT PRIMARY KEY,
    tenant_key       TEXT NOT NULL,
    event_name       TEXT NOT NULL,
    status           TEXT NOT NULL,
    response_summary TEXT NOT NULL DEFAULT '',
    error_detail     TEXT,
    created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_log_tenant ON event_log (tenant_key, created_at DESC);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const timeFormat = time.RFC3339Nano

// --- configstore.Store ---

func (s *Store) GetConfig(ctx context.Context, domainKey string) (*tenant.Config, error) {
	var cfg tenant.Config
	var credID sql.NullString
	var created, updated string
	err := s.db.QueryRowContext(ctx, `
SELECT domain, gateway_enabled, credential_set_id, created_at, updated_at
FROM tenant_configs WHERE domain = ?`, domainKey,
	).Scan(&cfg.Domain, &cfg.GatewayEnabled, &credID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get config %s: %w", domainKey, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get config %s: %w", domainKey, err)
	}
	cfg.CredentialSetID = credID.String
	cfg.CreatedAt, _ = time.Parse(timeFormat, created)
	cfg.UpdatedAt, _ = time.Parse(timeFormat, updated)
	return &cfg, nil
}

func (s *Store) UpsertConfig(ctx context.Context, cfg *tenant.Config) (*tenant.Config, error) {
	now := time.Now().UTC().Format(timeFormat)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tenant_configs (domain, gateway_enabled, credential_set_id, created_at, updated_at)
VALUES (?, ?, NULLIF(?, ''), ?, ?)
ON CONFLICT (domain) DO UPDATE SET
  gateway_enabled   = excluded.gateway_enabled,
  credential_set_id = COALESCE(excluded.credential_set_id, tenant_configs.credential_set_id),
  updated_at        = excluded.updated_at`,
		cfg.Domain, cfg.GatewayEnabled, cfg.CredentialSetID, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert config %s: %w", cfg.Domain, err)
	}
	return s.GetConfig(ctx, cfg.Domain)
}

func (s *Store) GetCredential(ctx context.Context, accountID string) (*tenant.CredentialSet, error) {
	var cs tenant.CredentialSet
	var token, name sql.NullString
	var created, updated string
	err := s.db.QueryRowContext(ctx, `
SELECT account_id, access_token, display_name, created_at, updated_at
FROM credential_sets WHERE account_id = ?`, accountID,
	).Scan(&cs.AccountID, &token, &name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get credential %s: %w", accountID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", accountID, err)
	}
	cs.AccessToken = token.String
	cs.DisplayName = name.String
	cs.CreatedAt, _ = time.Parse(timeFormat, created)
	cs.UpdatedAt, _ = time.Parse(timeFormat, updated)
	return &cs, nil
}

func (s *Store) UpsertCredential(ctx context.Context, cs *tenant.CredentialSet) (*tenant.CredentialSet, error) {
	now := time.Now().UTC().Format(timeFormat)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO credential_sets (account_id, access_token, display_name, created_at, updated_at)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)
ON CONFLICT (account_id) DO UPDATE SET
  access_token = COALESCE(NULLIF(excluded.access_token, ''), credential_sets.access_token),
  display_name = COALESCE(NULLIF(excluded.display_name, ''), credential_sets.display_name),
  updated_at   = excluded.updated_at`,
		cs.AccountID, cs.AccessToken, cs.DisplayName, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert credential %s: %w", cs.AccountID, err)
	}
	return s.GetCredential(ctx, cs.AccountID)
}

// --- eventlog.Store ---

func (s *Store) Append(ctx context.Context, rec *event.LogRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO event_log (id, tenant_key, event_name, status, response_summary, error_detail, created_at)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)`,
		rec.ID, rec.TenantKey, rec.StandardName, string(rec.Status),
		rec.ResponseSummary, rec.ErrorDetail, rec.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("append event log: %w", err)
	}
	return nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]event.LogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, tenant_key, event_name, status, response_summary, COALESCE(error_detail, ''), created_at
FROM event_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRecords(rows)
}

func (s *Store) ListByTenant(ctx context.Context, tenantKey string, limit int) ([]event.LogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, tenant_key, event_name, status, response_summary, COALESCE(error_detail, ''), created_at
FROM event_log WHERE tenant_key = ? ORDER BY created_at DESC LIMIT ?`, tenantKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", tenantKey, err)
	}
	defer func() { _ = rows.Close() }()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]event.LogRecord, error) {
	var out []event.LogRecord
	for rows.Next() {
		var rec event.LogRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.TenantKey, &rec.StandardName, &rec.Status,
			&rec.ResponseSummary, &rec.ErrorDetail, &created); err != nil {
			return nil, fmt.Errorf("scan log record: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(timeFormat, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}
