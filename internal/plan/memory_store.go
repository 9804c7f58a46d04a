package plan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/bazaar/internal/idgen"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Plan
	bySlug map[string]string
}

// NewMemoryStore creates an empty in-memory plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Plan),
		bySlug: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, p *Plan) error {
	if !ValidScope(p.Scope) {
		return ErrInvalidScope
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySlug[p.Slug]; ok {
		return ErrSlugTaken
	}

	if p.ID == "" {
		p.ID = idgen.WithPrefix("pl_")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	cp := *p
	s.byID[cp.ID] = &cp
	s.bySlug[cp.Slug] = cp.ID
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetBySlug(ctx context.Context, slug string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySlug[slug]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Plan, 0, len(s.byID))
	for _, p := range s.byID {
		if !p.Active {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MonthlyQuota != out[j].MonthlyQuota {
			return out[i].MonthlyQuota < out[j].MonthlyQuota
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

func (s *MemoryStore) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return ErrPlanNotFound
	}
	p.Active = active
	return nil
}

var _ Store = (*MemoryStore)(nil)
