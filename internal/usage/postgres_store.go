package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mbd888/bazaar/internal/idgen"
)

// maxRetries bounds serialization-failure retries before giving up with
// ErrContention.
const maxRetries = 3

// PostgresStore is a Postgres-backed Store. Increments run in serializable
// transactions with a row lock on the period, so two racing requests on the
// last unit of quota can never both succeed.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed usage store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) IncrementOrReject(ctx context.Context, apiKeyID, month string, monthlyQuota int) (*Status, error) {
	var (
		st  *Status
		err error
	)
	for attempt := 0; attempt < maxRetries; attempt++ {
		st, err = s.incrementOnce(ctx, apiKeyID, month, monthlyQuota)
		if !isRetryable(err) {
			return st, err
		}
	}
	return nil, ErrContention
}

func (s *PostgresStore) incrementOnce(ctx context.Context, apiKeyID, month string, monthlyQuota int) (*Status, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin usage tx: %w", err)
	}
	defer tx.Rollback()

	// The status read locks the credential row, so a rotation or
	// revocation committing between authentication and this point is
	// observed here and the unit is never consumed.
	var active bool
	err = tx.QueryRowContext(ctx,
		`SELECT active FROM api_keys WHERE id = $1 FOR UPDATE`,
		apiKeyID,
	).Scan(&active)
	if err == sql.ErrNoRows {
		return nil, ErrNotActive
	}
	if err != nil {
		return nil, fmt.Errorf("lock credential row: %w", err)
	}
	if !active {
		return nil, ErrNotActive
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_monthly (api_key_id, month)
		VALUES ($1, $2)
		ON CONFLICT (api_key_id, month) DO NOTHING`,
		apiKeyID, month)
	if err != nil {
		return nil, fmt.Errorf("ensure usage row: %w", err)
	}

	p := Period{APIKeyID: apiKeyID, Month: month}
	err = tx.QueryRowContext(ctx, `
		SELECT request_count, extra_quota
		FROM usage_monthly
		WHERE api_key_id = $1 AND month = $2
		FOR UPDATE`,
		apiKeyID, month,
	).Scan(&p.RequestCount, &p.ExtraQuota)
	if err != nil {
		return nil, fmt.Errorf("lock usage row: %w", err)
	}

	if p.RequestCount >= monthlyQuota+p.ExtraQuota {
		// Reject without consuming; nothing to commit
		return status(&p, monthlyQuota), ErrQuotaExhausted
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE usage_monthly
		SET request_count = request_count + 1
		WHERE api_key_id = $1 AND month = $2`,
		apiKeyID, month)
	if err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit usage tx: %w", err)
	}
	p.RequestCount++
	return status(&p, monthlyQuota), nil
}

func (s *PostgresStore) Get(ctx context.Context, apiKeyID, month string) (*Period, error) {
	p := Period{APIKeyID: apiKeyID, Month: month}
	err := s.db.QueryRowContext(ctx, `
		SELECT request_count, extra_quota
		FROM usage_monthly
		WHERE api_key_id = $1 AND month = $2`,
		apiKeyID, month,
	).Scan(&p.RequestCount, &p.ExtraQuota)
	if err == sql.ErrNoRows {
		return &p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) AddExtraQuota(ctx context.Context, apiKeyID, month string, amount int, idempotencyKey string) (*Period, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin grant tx: %w", err)
	}
	defer tx.Rollback()

	var idem sql.NullString
	if idempotencyKey != "" {
		idem = sql.NullString{String: idempotencyKey, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_grants (id, api_key_id, month, amount, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)`,
		idgen.WithPrefix("cg_"), apiKeyID, month, amount, idem)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateGrant
		}
		return nil, fmt.Errorf("insert credit grant: %w", err)
	}

	p := Period{APIKeyID: apiKeyID, Month: month}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO usage_monthly (api_key_id, month, extra_quota)
		VALUES ($1, $2, $3)
		ON CONFLICT (api_key_id, month)
		DO UPDATE SET extra_quota = usage_monthly.extra_quota + EXCLUDED.extra_quota
		RETURNING request_count, extra_quota`,
		apiKeyID, month, amount,
	).Scan(&p.RequestCount, &p.ExtraQuota)
	if err != nil {
		return nil, fmt.Errorf("apply credit grant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grant tx: %w", err)
	}
	return &p, nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure and deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
