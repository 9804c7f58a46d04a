package usage

import "context"

// Store persists monthly usage periods and credit grants.
type Store interface {
	// IncrementOrReject atomically claims one request unit for the
	// credential's month, creating the period row on first use. The
	// credential's status is read inside the same exclusive section: a
	// revoked credential is rejected with ErrNotActive even if it was
	// active when the request was authenticated. When the period has
	// reached monthlyQuota plus its purchased extra quota the counter is
	// left untouched and ErrQuotaExhausted is returned; the Status
	// reflects the period state either way.
	IncrementOrReject(ctx context.Context, apiKeyID, month string, monthlyQuota int) (*Status, error)

	// Get returns the period for a credential and month. A missing row
	// reads as a zero period, not an error.
	Get(ctx context.Context, apiKeyID, month string) (*Period, error)

	// AddExtraQuota applies a purchased credit grant to the period.
	// idempotencyKey deduplicates retries: a key seen before returns
	// ErrDuplicateGrant and leaves the period unchanged.
	AddExtraQuota(ctx context.Context, apiKeyID, month string, amount int, idempotencyKey string) (*Period, error)
}
