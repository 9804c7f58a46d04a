package tenant

import "context"

// Store persists tenants.
type Store interface {
	// GetByID returns a tenant by ID. Returns ErrNotFound if missing.
	GetByID(ctx context.Context, id string) (*Tenant, error)

	// GetOrCreateByEmail finds the tenant with the given (normalized)
	// email, creating one if none exists. Concurrent calls for the same
	// email converge on a single row.
	GetOrCreateByEmail(ctx context.Context, email string) (*Tenant, error)

	// GetOrCreateByExternalID finds the tenant with the given external
	// identity, creating one if none exists.
	GetOrCreateByExternalID(ctx context.Context, externalID, email string) (*Tenant, error)
}
