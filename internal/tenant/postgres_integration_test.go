//go:build integration

package tenant

import (
	"context"
	"testing"

	"github.com/mbd888/bazaar/internal/testutil"
)

func TestPostgresEmailSharedAcrossIdentityBoundary(t *testing.T) {
	db := testutil.DB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	anon, err := s.GetOrCreateByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("GetOrCreateByEmail: %v", err)
	}

	// The same email arriving with a verified subject inserts a second,
	// identity-bound row instead of raising a unique violation.
	bound, err := s.GetOrCreateByExternalID(ctx, "auth0|abc", "user@example.com")
	if err != nil {
		t.Fatalf("GetOrCreateByExternalID: %v", err)
	}
	if bound.ID == anon.ID {
		t.Fatal("identity-bound tenant merged with anonymous tenant")
	}
	if bound.Email != "user@example.com" {
		t.Errorf("identity-bound email = %q, want %q", bound.Email, "user@example.com")
	}

	// Anonymous lookups keep resolving to the anonymous row
	again, err := s.GetOrCreateByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("repeat GetOrCreateByEmail: %v", err)
	}
	if again.ID != anon.ID {
		t.Errorf("anonymous lookup resolved to %s, want %s", again.ID, anon.ID)
	}
}

func TestPostgresExternalIDEmailBackfill(t *testing.T) {
	db := testutil.DB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	// The email is already held by an anonymous tenant
	if _, err := s.GetOrCreateByEmail(ctx, "late@example.com"); err != nil {
		t.Fatalf("GetOrCreateByEmail: %v", err)
	}

	first, err := s.GetOrCreateByExternalID(ctx, "auth0|xyz", "")
	if err != nil {
		t.Fatalf("GetOrCreateByExternalID: %v", err)
	}
	if first.Email != "" {
		t.Errorf("unexpected email on first call: %q", first.Email)
	}

	// The provider supplies the email later; it lands despite the
	// anonymous row holding the same address
	second, err := s.GetOrCreateByExternalID(ctx, "auth0|xyz", "late@example.com")
	if err != nil {
		t.Fatalf("second GetOrCreateByExternalID: %v", err)
	}
	if second.ID != first.ID {
		t.Error("same external ID produced two tenants")
	}
	if second.Email != "late@example.com" {
		t.Errorf("email not backfilled: %q", second.Email)
	}
}
