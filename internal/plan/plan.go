// Package plan provides the catalog of purchasable API plans.
package plan

import (
	"errors"
	"time"
)

// Errors
var (
	ErrPlanNotFound = errors.New("plan: not found")
	ErrSlugTaken    = errors.New("plan: slug already taken")
	ErrInvalidScope = errors.New("plan: invalid scope")
)

// Scope is the data-category entitlement a plan grants.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeCurrency Scope = "currency"
	ScopeCrypto   Scope = "crypto"
	ScopeGold     Scope = "gold"
)

// ValidScope returns true if the scope is recognised.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeAll, ScopeCurrency, ScopeCrypto, ScopeGold:
		return true
	}
	return false
}

// Plan is a purchasable tier. Immutable once created except the Active flag.
type Plan struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Scope        Scope     `json:"scope"`
	Name         string    `json:"name"`
	MonthlyQuota int       `json:"monthly_quota"`
	RPMLimit     int       `json:"rpm_limit"`
	PriceIRR     int64     `json:"price_irr"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Defaults is the catalog seeded into an empty store.
var Defaults = []Plan{
	{
		Slug:         "starter",
		Scope:        ScopeCurrency,
		Name:         "پلن استارتر",
		MonthlyQuota: 300_000,
		RPMLimit:     120,
		PriceIRR:     0,
		Active:       true,
	},
	{
		Slug:         "business",
		Scope:        ScopeAll,
		Name:         "پلن تجاری",
		MonthlyQuota: 1_000_000,
		RPMLimit:     600,
		PriceIRR:     0,
		Active:       true,
	},
	{
		Slug:         "enterprise",
		Scope:        ScopeAll,
		Name:         "پلن سازمانی",
		MonthlyQuota: 10_000_000,
		RPMLimit:     2_000,
		PriceIRR:     0,
		Active:       true,
	},
}
