package keys

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*APIKey
	byHash map[string]string
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*APIKey),
		byHash: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createLocked(key)
	return nil
}

func (s *MemoryStore) createLocked(key *APIKey) {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	cp := *key
	s.byID[cp.ID] = &cp
	s.byHash[cp.Hash] = cp.ID
}

func (s *MemoryStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id, tenantID string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.byID[id]
	if !ok || (tenantID != "" && k.TenantID != tenantID) {
		return nil, ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*APIKey
	for _, k := range s.byID {
		if k.TenantID == tenantID {
			cp := *k
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*APIKey, 0, len(s.byID))
	for _, k := range s.byID {
		cp := *k
		out = append(out, &cp)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(keys []*APIKey) {
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].CreatedAt.After(keys[j].CreatedAt)
		}
		return keys[i].ID > keys[j].ID
	})
}

func (s *MemoryStore) Rotate(ctx context.Context, oldID, tenantID string, replacement *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[oldID]
	if !ok || !old.Active || (tenantID != "" && old.TenantID != tenantID) {
		return ErrKeyNotFound
	}

	now := time.Now().UTC()
	old.Active = false
	old.RevokedAt = &now
	s.createLocked(replacement)
	return nil
}

func (s *MemoryStore) Revoke(ctx context.Context, id, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byID[id]
	if !ok || !k.Active || (tenantID != "" && k.TenantID != tenantID) {
		return ErrKeyNotFound
	}
	now := time.Now().UTC()
	k.Active = false
	k.RevokedAt = &now
	return nil
}

var _ Store = (*MemoryStore)(nil)
