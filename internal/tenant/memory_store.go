package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/mbd888/bazaar/internal/idgen"
)

// MemoryStore is an in-memory Store for development and tests.
//
// byEmail indexes anonymous tenants only. An identity-bound tenant may
// carry the same email as an anonymous one; the two stay distinct rows.
type MemoryStore struct {
	mu         sync.Mutex
	byID       map[string]*Tenant
	byEmail    map[string]string
	byExternal map[string]string
}

// NewMemoryStore creates an empty in-memory tenant store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*Tenant),
		byEmail:    make(map[string]string),
		byExternal: make(map[string]string),
	}
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetOrCreateByEmail(ctx context.Context, email string) (*Tenant, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrNoIdentifier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byEmail[email]; ok {
		cp := *s.byID[id]
		return &cp, nil
	}

	t := &Tenant{
		ID:        idgen.WithPrefix("tn_"),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	s.byID[t.ID] = t
	s.byEmail[email] = t.ID
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetOrCreateByExternalID(ctx context.Context, externalID, email string) (*Tenant, error) {
	if externalID == "" {
		return nil, ErrNoIdentifier
	}
	email = NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byExternal[externalID]; ok {
		t := s.byID[id]
		// Identity provider may supply the email later than the first call
		if t.Email == "" && email != "" {
			t.Email = email
		}
		cp := *t
		return &cp, nil
	}

	t := &Tenant{
		ID:         idgen.WithPrefix("tn_"),
		ExternalID: externalID,
		Email:      email,
		CreatedAt:  time.Now().UTC(),
	}
	s.byID[t.ID] = t
	s.byExternal[externalID] = t.ID
	cp := *t
	return &cp, nil
}

var _ Store = (*MemoryStore)(nil)
