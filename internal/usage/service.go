package usage

import (
	"context"
	"time"

	"github.com/mbd888/bazaar/internal/traces"
)

// Service applies the calendar clock to the store. The month is computed
// per call, so a request landing after a UTC month boundary starts a fresh
// period even if the process has been up since last month.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a usage service on top of a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// IncrementOrReject meters one request against the credential's current
// month.
func (s *Service) IncrementOrReject(ctx context.Context, apiKeyID string, monthlyQuota int) (*Status, error) {
	month := Month(s.now())
	ctx, span := traces.StartSpan(ctx, "usage.increment_or_reject",
		traces.KeyID(apiKeyID), traces.Month(month))
	defer span.End()

	st, err := s.store.IncrementOrReject(ctx, apiKeyID, month, monthlyQuota)
	switch err {
	case nil:
		span.SetAttributes(traces.Outcome("allowed"))
	case ErrQuotaExhausted:
		span.SetAttributes(traces.Outcome("quota_exhausted"))
	case ErrNotActive:
		span.SetAttributes(traces.Outcome("not_active"))
	default:
		span.SetAttributes(traces.Outcome("error"))
	}
	return st, err
}

// Current reports the credential's consumption for the current month
// without counting anything.
func (s *Service) Current(ctx context.Context, apiKeyID string, monthlyQuota int) (*Status, error) {
	p, err := s.store.Get(ctx, apiKeyID, Month(s.now()))
	if err != nil {
		return nil, err
	}
	return status(p, monthlyQuota), nil
}

// AddCredit applies a purchased add-on to the credential's current month.
// Credits expire with the month they were granted in; they do not roll
// over.
func (s *Service) AddCredit(ctx context.Context, apiKeyID string, amount int, idempotencyKey string) (*Period, error) {
	return s.store.AddExtraQuota(ctx, apiKeyID, Month(s.now()), amount, idempotencyKey)
}
