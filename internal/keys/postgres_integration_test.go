//go:build integration

package keys

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/mbd888/bazaar/internal/pepper"
	"github.com/mbd888/bazaar/internal/plan"
	"github.com/mbd888/bazaar/internal/tenant"
	"github.com/mbd888/bazaar/internal/testutil"
)

func seedManager(t *testing.T, db *sql.DB) (*Manager, string, string) {
	t.Helper()
	ctx := context.Background()

	plans := plan.NewPostgresStore(db)
	p := &plan.Plan{Slug: "it-plan", Scope: plan.ScopeGold, MonthlyQuota: 100, Active: true}
	if err := plans.Create(ctx, p); err != nil {
		t.Fatalf("create plan: %v", err)
	}

	tn, err := tenant.NewPostgresStore(db).GetOrCreateByEmail(ctx, "keys-it@example.com")
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	mgr := NewManager(NewPostgresStore(db), plans, pepper.NewSource("it-pepper", ""))
	return mgr, tn.ID, p.ID
}

func TestPostgresIssueAndAuthenticate(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	mgr, tenantID, planID := seedManager(t, db)

	raw, key, err := mgr.Issue(ctx, tenantID, planID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, p, err := mgr.Authenticate(ctx, raw)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != key.ID || p.ID != planID {
		t.Errorf("authenticated wrong record: key %s plan %s", got.ID, p.ID)
	}

	if _, _, err := mgr.Authenticate(ctx, Prefix+"garbage"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for unknown key, got %v", err)
	}
}

func TestPostgresRotate(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	mgr, tenantID, planID := seedManager(t, db)

	oldRaw, oldKey, err := mgr.Issue(ctx, tenantID, planID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	newRaw, newKey, err := mgr.Rotate(ctx, oldKey.ID, tenantID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if _, _, err := mgr.Authenticate(ctx, oldRaw); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("old secret still authenticates after rotation: %v", err)
	}
	got, _, err := mgr.Authenticate(ctx, newRaw)
	if err != nil {
		t.Fatalf("authenticate replacement: %v", err)
	}
	if got.ID != newKey.ID {
		t.Errorf("authenticated key = %s, want %s", got.ID, newKey.ID)
	}

	// The ledger keeps the revoked row with its revocation time
	list, err := mgr.ListForTenant(ctx, tenantID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(list))
	}
	var sawRevoked bool
	for _, k := range list {
		if k.ID == oldKey.ID {
			sawRevoked = true
			if k.Active || k.RevokedAt == nil {
				t.Errorf("old key not properly revoked: active=%v revoked_at=%v", k.Active, k.RevokedAt)
			}
		}
	}
	if !sawRevoked {
		t.Error("revoked row missing from ledger")
	}

	// A dead key cannot be rotated again
	if _, _, err := mgr.Rotate(ctx, oldKey.ID, tenantID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound rotating a revoked key, got %v", err)
	}
}

func TestPostgresRotateOwnership(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	mgr, tenantID, planID := seedManager(t, db)

	_, key, err := mgr.Issue(ctx, tenantID, planID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, err := tenant.NewPostgresStore(db).GetOrCreateByEmail(ctx, "other@example.com")
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	if _, _, err := mgr.Rotate(ctx, key.ID, other.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound for foreign tenant, got %v", err)
	}
}
