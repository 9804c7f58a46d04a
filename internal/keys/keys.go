// Package keys issues and authenticates API credentials.
//
// Only a peppered HMAC-SHA256 digest of each key is stored; the raw secret
// is shown exactly once at issue or rotation time. The ledger is
// append-only: revocation and rotation mark rows revoked, they never delete
// them. Every authentication failure surfaces as the same ErrInvalidKey so
// callers cannot distinguish an unknown key from a revoked or
// plan-disabled one.
package keys

import (
	"errors"
	"time"
)

// Errors
var (
	ErrInvalidKey  = errors.New("keys: invalid API key")
	ErrKeyNotFound = errors.New("keys: key not found")
)

// Prefix identifies raw keys on the wire.
const Prefix = "bb_"

// APIKey is the stored credential record. The raw secret never persists.
type APIKey struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	PlanID    string     `json:"plan_id"`
	Hash      string     `json:"-"` // hex HMAC-SHA256 of the raw key
	Last4     string     `json:"-"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Masked returns the display form of the key, e.g. "bb_…x9Qz". Enough to
// recognise a key in a dashboard, useless for authentication.
func (k *APIKey) Masked() string {
	return Prefix + "…" + k.Last4
}
