package usage

import (
	"context"
	"sync"
)

// ActiveFunc reports whether a credential may consume quota. It is
// consulted inside the increment's critical section so a revocation
// landing after authentication still rejects the request.
type ActiveFunc func(ctx context.Context, apiKeyID string) (bool, error)

// MemoryStore is an in-memory Store for development and tests. A single
// mutex around the whole table gives the same all-or-nothing visibility a
// database transaction would.
type MemoryStore struct {
	mu      sync.Mutex
	periods map[string]*Period // keyed by apiKeyID + "|" + month
	grants  map[string]bool    // idempotency keys already applied
	active  ActiveFunc
}

// NewMemoryStore creates an empty in-memory usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		periods: make(map[string]*Period),
		grants:  make(map[string]bool),
	}
}

// SetActiveCheck wires the credential-status probe. Without one, every
// credential is treated as active; the server always sets it.
func (s *MemoryStore) SetActiveCheck(fn ActiveFunc) {
	s.mu.Lock()
	s.active = fn
	s.mu.Unlock()
}

func periodKey(apiKeyID, month string) string {
	return apiKeyID + "|" + month
}

func (s *MemoryStore) getOrCreateLocked(apiKeyID, month string) *Period {
	k := periodKey(apiKeyID, month)
	p, ok := s.periods[k]
	if !ok {
		p = &Period{APIKeyID: apiKeyID, Month: month}
		s.periods[k] = p
	}
	return p
}

func (s *MemoryStore) IncrementOrReject(ctx context.Context, apiKeyID, month string, monthlyQuota int) (*Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		ok, err := s.active(ctx, apiKeyID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotActive
		}
	}

	p := s.getOrCreateLocked(apiKeyID, month)
	if p.RequestCount >= monthlyQuota+p.ExtraQuota {
		return status(p, monthlyQuota), ErrQuotaExhausted
	}
	p.RequestCount++
	return status(p, monthlyQuota), nil
}

func (s *MemoryStore) Get(ctx context.Context, apiKeyID, month string) (*Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.periods[periodKey(apiKeyID, month)]
	if !ok {
		return &Period{APIKeyID: apiKeyID, Month: month}, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) AddExtraQuota(ctx context.Context, apiKeyID, month string, amount int, idempotencyKey string) (*Period, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if s.grants[idempotencyKey] {
			return nil, ErrDuplicateGrant
		}
		s.grants[idempotencyKey] = true
	}

	p := s.getOrCreateLocked(apiKeyID, month)
	p.ExtraQuota += amount
	cp := *p
	return &cp, nil
}

var _ Store = (*MemoryStore)(nil)
