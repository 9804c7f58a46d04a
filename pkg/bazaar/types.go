package bazaar

// Plan is a purchasable access plan.
type Plan struct {
	Slug         string `json:"slug"`
	Scope        string `json:"scope"`
	Name         string `json:"name"`
	MonthlyQuota int    `json:"monthly_quota"`
	RPMLimit     int    `json:"rpm_limit"`
	PriceIRR     int64  `json:"price_irr"`
}

// PlanRef names a plan in credential responses.
type PlanRef struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Credential is the response to a purchase or rotation. APIKey is the raw
// secret and is shown exactly once; store it.
type Credential struct {
	APIKey    string  `json:"api_key"`
	APIKeyID  string  `json:"api_key_id"`
	Plan      PlanRef `json:"plan"`
	CreatedAt string  `json:"created_at"`
}

// Usage is the credential's consumption for the current month.
type Usage struct {
	Month        string  `json:"month"`
	RequestCount int     `json:"request_count"`
	MonthlyQuota int     `json:"monthly_quota"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	Plan         PlanRef `json:"plan"`
}

// Prices is a metered price snapshot, filtered to the plan's scope.
type Prices struct {
	Data        map[string]any `json:"data"`
	LastUpdated string         `json:"last_updated"`
	Status      string         `json:"status"`
}

// APIError is a non-2xx answer from the platform.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// IsQuotaExhausted reports whether err is a quota rejection.
func IsQuotaExhausted(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == "quota_exhausted"
}

// IsRateLimited reports whether err is a per-minute rate rejection.
func IsRateLimited(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == "rate_limited"
}
