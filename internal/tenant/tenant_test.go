package tenant

import (
	"context"
	"sync"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"  Alice@Example.COM ": "alice@example.com",
		"bob@example.com":      "bob@example.com",
		"":                     "",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMemoryStore_GetOrCreateByEmail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.GetOrCreateByEmail(ctx, "Alice@Example.com")
	if err != nil {
		t.Fatalf("GetOrCreateByEmail failed: %v", err)
	}
	if first.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", first.Email)
	}

	second, err := s.GetOrCreateByEmail(ctx, "alice@example.com ")
	if err != nil {
		t.Fatalf("second GetOrCreateByEmail failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("same email produced two tenants: %s vs %s", first.ID, second.ID)
	}

	if _, err := s.GetOrCreateByEmail(ctx, "  "); err != ErrNoIdentifier {
		t.Errorf("got %v, want ErrNoIdentifier", err)
	}
}

func TestMemoryStore_GetOrCreateByExternalID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.GetOrCreateByExternalID(ctx, "sub-123", "")
	if err != nil {
		t.Fatalf("GetOrCreateByExternalID failed: %v", err)
	}
	if first.Email != "" {
		t.Errorf("unexpected email: %q", first.Email)
	}

	// Email arriving on a later call backfills the existing row
	second, err := s.GetOrCreateByExternalID(ctx, "sub-123", "alice@example.com")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("same external ID produced two tenants")
	}
	if second.Email != "alice@example.com" {
		t.Errorf("email not backfilled: %q", second.Email)
	}

	if _, err := s.GetOrCreateByExternalID(ctx, "", "x@y.z"); err != ErrNoIdentifier {
		t.Errorf("got %v, want ErrNoIdentifier", err)
	}
}

func TestMemoryStore_EmailSharedAcrossIdentityBoundary(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	anon, err := s.GetOrCreateByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("GetOrCreateByEmail failed: %v", err)
	}

	// An identity subject claiming the same email is a distinct tenant
	// and keeps the email on its own row.
	bound, err := s.GetOrCreateByExternalID(ctx, "auth0|abc", "user@example.com")
	if err != nil {
		t.Fatalf("GetOrCreateByExternalID failed: %v", err)
	}
	if bound.ID == anon.ID {
		t.Fatal("identity-bound tenant merged with anonymous tenant")
	}
	if bound.Email != "user@example.com" {
		t.Errorf("identity-bound tenant lost its email: got %q, want %q",
			bound.Email, "user@example.com")
	}

	// The anonymous row is untouched and still reachable by email
	again, err := s.GetOrCreateByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("repeat GetOrCreateByEmail failed: %v", err)
	}
	if again.ID != anon.ID {
		t.Errorf("anonymous lookup resolved to %s, want %s", again.ID, anon.ID)
	}

	// The reverse order holds too: identity first, anonymous second
	s2 := NewMemoryStore()
	bound2, _ := s2.GetOrCreateByExternalID(ctx, "auth0|xyz", "late@example.com")
	anon2, err := s2.GetOrCreateByEmail(ctx, "late@example.com")
	if err != nil {
		t.Fatalf("anonymous purchase after identity signup failed: %v", err)
	}
	if anon2.ID == bound2.ID {
		t.Error("anonymous purchase reused the identity-bound tenant")
	}
}

func TestMemoryStore_GetByID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, _ := s.GetOrCreateByEmail(ctx, "a@b.c")
	got, err := s.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Email != "a@b.c" {
		t.Errorf("got email %q", got.Email)
	}

	if _, err := s.GetByID(ctx, "tn_missing"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ConcurrentGetOrCreate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tn, err := s.GetOrCreateByEmail(ctx, "race@example.com")
			if err != nil {
				t.Errorf("GetOrCreateByEmail failed: %v", err)
				return
			}
			ids[i] = tn.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent calls produced different tenants: %s vs %s", ids[i], ids[0])
		}
	}
}
