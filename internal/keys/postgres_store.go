package keys

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore is a Postgres-backed Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed credential store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const keyColumns = `id, tenant_id, plan_id, key_hash, last4, active, created_at, revoked_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanKey(row scannable) (*APIKey, error) {
	var k APIKey
	var revoked sql.NullTime
	err := row.Scan(&k.ID, &k.TenantID, &k.PlanID, &k.Hash, &k.Last4,
		&k.Active, &k.CreatedAt, &revoked)
	if err != nil {
		return nil, err
	}
	if revoked.Valid {
		k.RevokedAt = &revoked.Time
	}
	return &k, nil
}

func (s *PostgresStore) Create(ctx context.Context, key *APIKey) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (id, tenant_id, plan_id, key_hash, last4, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		key.ID, key.TenantID, key.PlanID, key.Hash, key.Last4, key.Active,
	).Scan(&key.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
	k, err := scanKey(row)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id, tenantID string) (*APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE id = $1`
	args := []any{id}
	if tenantID != "" {
		query += ` AND tenant_id = $2`
		args = append(args, tenantID)
	}

	k, err := scanKey(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return collectKeys(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent api keys: %w", err)
	}
	defer rows.Close()
	return collectKeys(rows)
}

func collectKeys(rows *sql.Rows) ([]*APIKey, error) {
	var out []*APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Rotate runs revoke-old plus insert-new in one transaction. A crash
// between the two statements rolls both back; the old secret keeps
// working until the new one is fully committed.
func (s *PostgresStore) Rotate(ctx context.Context, oldID, tenantID string, replacement *APIKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotate tx: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE api_keys SET active = false, revoked_at = now() WHERE id = $1 AND active`
	args := []any{oldID}
	if tenantID != "" {
		query += ` AND tenant_id = $2`
		args = append(args, tenantID)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("revoke old key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrKeyNotFound
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO api_keys (id, tenant_id, plan_id, key_hash, last4, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		replacement.ID, replacement.TenantID, replacement.PlanID,
		replacement.Hash, replacement.Last4, replacement.Active,
	).Scan(&replacement.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert replacement key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotate tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, id, tenantID string) error {
	query := `UPDATE api_keys SET active = false, revoked_at = now() WHERE id = $1 AND active`
	args := []any{id}
	if tenantID != "" {
		query += ` AND tenant_id = $2`
		args = append(args, tenantID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
