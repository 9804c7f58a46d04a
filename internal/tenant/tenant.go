// Package tenant manages the owners of issued credentials.
//
// A tenant is identified either by email (self-service purchases) or by an
// opaque external ID supplied by the upstream identity provider. Lookups are
// get-or-create so a purchase never fails on a first-time buyer.
package tenant

import (
	"errors"
	"strings"
	"time"
)

// Errors
var (
	ErrNotFound     = errors.New("tenant: not found")
	ErrNoIdentifier = errors.New("tenant: email or external ID required")
)

// Tenant is an owner of API credentials.
type Tenant struct {
	ID         string    `json:"id"`
	Email      string    `json:"email,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NormalizeEmail lowercases and trims an email address so the same mailbox
// always maps to the same tenant row.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
