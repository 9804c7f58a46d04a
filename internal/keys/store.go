package keys

import "context"

// Store persists the append-only credential ledger.
type Store interface {
	// Create inserts a new credential.
	Create(ctx context.Context, key *APIKey) error

	// GetByHash returns the credential with the given digest. Returns
	// ErrKeyNotFound if missing.
	GetByHash(ctx context.Context, hash string) (*APIKey, error)

	// GetByID returns a credential by ID, scoped to a tenant. An empty
	// tenantID skips the ownership check (admin paths).
	GetByID(ctx context.Context, id, tenantID string) (*APIKey, error)

	// ListByTenant returns a tenant's credentials, newest first.
	ListByTenant(ctx context.Context, tenantID string) ([]*APIKey, error)

	// ListRecent returns the most recently created credentials across all
	// tenants, newest first, capped at limit.
	ListRecent(ctx context.Context, limit int) ([]*APIKey, error)

	// Rotate revokes the old credential and inserts its replacement as one
	// atomic unit: at no point are both secrets valid, and a failure
	// leaves the old one untouched. Returns ErrKeyNotFound if the old key
	// is missing, already revoked, or owned by another tenant.
	Rotate(ctx context.Context, oldID, tenantID string, replacement *APIKey) error

	// Revoke deactivates a credential. Revoked rows stay in the ledger.
	// Returns ErrKeyNotFound if missing, already revoked, or not owned.
	Revoke(ctx context.Context, id, tenantID string) error
}
