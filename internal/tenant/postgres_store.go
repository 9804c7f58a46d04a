package tenant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mbd888/bazaar/internal/idgen"
)

// PostgresStore is a Postgres-backed Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed tenant store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func scanTenant(row *sql.Row) (*Tenant, error) {
	var t Tenant
	var email, external sql.NullString
	err := row.Scan(&t.ID, &email, &external, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Email = email.String
	t.ExternalID = external.String
	return &t, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, external_id, created_at FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// GetOrCreateByEmail relies on the anonymous-only partial unique index on
// email. INSERT ... ON CONFLICT DO NOTHING followed by a select keeps
// concurrent first-time buyers converging on one row without an advisory
// lock. Identity-bound rows carrying the same email are not candidates.
func (s *PostgresStore) GetOrCreateByEmail(ctx context.Context, email string) (*Tenant, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrNoIdentifier
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, email)
		VALUES ($1, $2)
		ON CONFLICT (email) WHERE email IS NOT NULL AND external_id IS NULL DO NOTHING`,
		idgen.WithPrefix("tn_"), email)
	if err != nil {
		return nil, fmt.Errorf("upsert tenant: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, external_id, created_at FROM tenants
		 WHERE email = $1 AND external_id IS NULL`, email)
	t, err := scanTenant(row)
	if err != nil {
		return nil, fmt.Errorf("get tenant by email: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetOrCreateByExternalID(ctx context.Context, externalID, email string) (*Tenant, error) {
	if externalID == "" {
		return nil, ErrNoIdentifier
	}
	email = NormalizeEmail(email)

	var emailArg sql.NullString
	if email != "" {
		emailArg = sql.NullString{String: email, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, email, external_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) WHERE external_id IS NOT NULL DO NOTHING`,
		idgen.WithPrefix("tn_"), emailArg, externalID)
	if err != nil {
		return nil, fmt.Errorf("upsert tenant: %w", err)
	}

	// Backfill the email onto a pre-existing row when the provider supplies
	// it later. An anonymous tenant with the same email stays a separate row.
	if email != "" {
		_, err = s.db.ExecContext(ctx, `
			UPDATE tenants SET email = $2
			WHERE external_id = $1 AND email IS NULL`,
			externalID, email)
		if err != nil {
			return nil, fmt.Errorf("backfill tenant email: %w", err)
		}
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, external_id, created_at FROM tenants WHERE external_id = $1`, externalID)
	t, err := scanTenant(row)
	if err != nil {
		return nil, fmt.Errorf("get tenant by external id: %w", err)
	}
	return t, nil
}

var _ Store = (*PostgresStore)(nil)
