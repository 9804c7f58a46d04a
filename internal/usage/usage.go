// Package usage meters per-credential request consumption by calendar
// month.
//
// The core operation is an atomic increment-or-reject: a request either
// claims one unit of the month's allowance or is rejected without consuming
// anything. There is no decrement path and no partially counted request.
package usage

import (
	"errors"
	"time"
)

// Errors
var (
	ErrQuotaExhausted = errors.New("usage: monthly quota exhausted")
	ErrNotActive      = errors.New("usage: credential not active")
	ErrContention     = errors.New("usage: too much contention, retry")
	ErrInvalidAmount  = errors.New("usage: amount must be positive")
	ErrDuplicateGrant = errors.New("usage: credit grant already applied")
)

// Period is one credential's consumption for one calendar month.
type Period struct {
	APIKeyID     string `json:"api_key_id"`
	Month        string `json:"month"`
	RequestCount int    `json:"request_count"`
	ExtraQuota   int    `json:"extra_quota"`
}

// Status is the metering outcome reported to callers, on both the allow
// and the reject path.
type Status struct {
	Month     string `json:"month"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// Month renders the UTC period key for a point in time, e.g. "2026-08".
// Periods roll over at UTC month boundaries regardless of server timezone.
func Month(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func status(p *Period, monthlyQuota int) *Status {
	limit := monthlyQuota + p.ExtraQuota
	remaining := limit - p.RequestCount
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		Month:     p.Month,
		Used:      p.RequestCount,
		Limit:     limit,
		Remaining: remaining,
	}
}
