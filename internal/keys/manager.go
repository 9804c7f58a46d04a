package keys

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mbd888/bazaar/internal/idgen"
	"github.com/mbd888/bazaar/internal/metrics"
	"github.com/mbd888/bazaar/internal/pepper"
	"github.com/mbd888/bazaar/internal/plan"
	"github.com/mbd888/bazaar/internal/traces"
)

// Manager issues, authenticates and rotates credentials.
type Manager struct {
	store  Store
	plans  plan.Store
	pepper *pepper.Source
}

// NewManager creates a credential manager.
func NewManager(store Store, plans plan.Store, pep *pepper.Source) *Manager {
	return &Manager{store: store, plans: plans, pepper: pep}
}

// Generate mints a raw key: the "bb_" prefix plus 32 random bytes in
// unpadded URL-safe base64.
func Generate() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(b)
}

// Hash computes the stored digest of a raw key.
func (m *Manager) Hash(raw string) (string, error) {
	pep, err := m.pepper.Get()
	if err != nil {
		return "", fmt.Errorf("resolve pepper: %w", err)
	}
	mac := hmac.New(sha256.New, pep)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Issue creates a credential for a tenant on a plan and returns the raw key
// alongside the stored record. The raw key is not recoverable afterwards.
func (m *Manager) Issue(ctx context.Context, tenantID, planID string) (rawKey string, key *APIKey, err error) {
	p, err := m.plans.GetByID(ctx, planID)
	if err != nil {
		return "", nil, err
	}
	if !p.Active {
		return "", nil, plan.ErrPlanNotFound
	}

	rawKey = Generate()
	hash, err := m.Hash(rawKey)
	if err != nil {
		return "", nil, err
	}

	key = &APIKey{
		ID:       idgen.WithPrefix("key_"),
		TenantID: tenantID,
		PlanID:   planID,
		Hash:     hash,
		Last4:    rawKey[len(rawKey)-4:],
		Active:   true,
	}
	if err := m.store.Create(ctx, key); err != nil {
		return "", nil, err
	}
	metrics.KeysIssuedTotal.Inc()
	return rawKey, key, nil
}

// Authenticate resolves a raw key to its record and plan. Every failure
// mode returns ErrInvalidKey; nothing in the response may leak whether a
// key exists, was revoked, or sits on a retired plan.
func (m *Manager) Authenticate(ctx context.Context, rawKey string) (*APIKey, *plan.Plan, error) {
	rawKey = strings.TrimSpace(strings.TrimPrefix(rawKey, "Bearer "))
	if !strings.HasPrefix(rawKey, Prefix) {
		return nil, nil, ErrInvalidKey
	}

	hash, err := m.Hash(rawKey)
	if err != nil {
		return nil, nil, err
	}

	key, err := m.store.GetByHash(ctx, hash)
	if err != nil {
		return nil, nil, ErrInvalidKey
	}
	if !key.Active {
		return nil, nil, ErrInvalidKey
	}

	p, err := m.plans.GetByID(ctx, key.PlanID)
	if err != nil {
		return nil, nil, ErrInvalidKey
	}
	if !p.Active {
		return nil, nil, ErrInvalidKey
	}

	return key, p, nil
}

// Rotate revokes a credential and issues its replacement on the same
// tenant and plan as one atomic unit. The old secret stops working the
// instant the new one exists, never before. tenantID scopes the lookup so
// a tenant can only rotate their own keys.
func (m *Manager) Rotate(ctx context.Context, keyID, tenantID string) (rawKey string, key *APIKey, err error) {
	ctx, span := traces.StartSpan(ctx, "keys.rotate",
		traces.KeyID(keyID), traces.TenantID(tenantID))
	defer span.End()

	old, err := m.store.GetByID(ctx, keyID, tenantID)
	if err != nil {
		return "", nil, err
	}
	if !old.Active {
		return "", nil, ErrKeyNotFound
	}

	rawKey = Generate()
	hash, err := m.Hash(rawKey)
	if err != nil {
		return "", nil, err
	}

	key = &APIKey{
		ID:       idgen.WithPrefix("key_"),
		TenantID: old.TenantID,
		PlanID:   old.PlanID,
		Hash:     hash,
		Last4:    rawKey[len(rawKey)-4:],
		Active:   true,
	}
	if err := m.store.Rotate(ctx, old.ID, tenantID, key); err != nil {
		return "", nil, err
	}
	metrics.KeyRotationsTotal.Inc()
	return rawKey, key, nil
}

// Revoke deactivates a credential. The row stays in the ledger.
func (m *Manager) Revoke(ctx context.Context, keyID, tenantID string) error {
	return m.store.Revoke(ctx, keyID, tenantID)
}

// GetOwned fetches a credential scoped to its owning tenant. A key that
// exists but belongs to someone else reads as ErrKeyNotFound.
func (m *Manager) GetOwned(ctx context.Context, keyID, tenantID string) (*APIKey, error) {
	return m.store.GetByID(ctx, keyID, tenantID)
}

// ListRecent returns the most recently created credentials across all
// tenants, newest first.
func (m *Manager) ListRecent(ctx context.Context, limit int) ([]*APIKey, error) {
	return m.store.ListRecent(ctx, limit)
}

// ListForTenant returns a tenant's credentials, newest first.
func (m *Manager) ListForTenant(ctx context.Context, tenantID string) ([]*APIKey, error) {
	return m.store.ListByTenant(ctx, tenantID)
}
