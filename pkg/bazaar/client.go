// Package bazaar is a small Go client for the Bazaar market data API.
//
// Typical use:
//
//	c := bazaar.NewClient("https://api.example.com")
//	cred, err := c.Purchase(ctx, "me@example.com", "starter")
//	c = c.WithKey(cred.APIKey)
//	prices, err := c.Prices(ctx)
package bazaar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to one Bazaar deployment.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// WithKey returns a copy of the client that authenticates with the given
// API key.
func (c *Client) WithKey(apiKey string) *Client {
	clone := *c
	clone.apiKey = apiKey
	return &clone
}

// Plans lists the active plans.
func (c *Client) Plans(ctx context.Context) ([]Plan, error) {
	var out struct {
		Plans []Plan `json:"plans"`
	}
	if err := c.do(ctx, http.MethodGet, "/plans", nil, &out); err != nil {
		return nil, err
	}
	return out.Plans, nil
}

// Purchase buys a plan for the given email and returns the new credential.
// The raw key in the response is not recoverable later.
func (c *Client) Purchase(ctx context.Context, email, planSlug string) (*Credential, error) {
	body := map[string]string{"email": email, "plan_slug": planSlug}
	var cred Credential
	if err := c.do(ctx, http.MethodPost, "/purchase", body, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// Prices fetches the scoped price snapshot. Each successful call consumes
// one unit of the monthly quota.
func (c *Client) Prices(ctx context.Context) (*Prices, error) {
	var p Prices
	if err := c.do(ctx, http.MethodGet, "/v1/prices", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Usage reads current-month consumption without consuming anything.
func (c *Client) Usage(ctx context.Context) (*Usage, error) {
	var u Usage
	if err := c.do(ctx, http.MethodGet, "/self/usage", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Rotate revokes the client's credential and returns its replacement. The
// client keeps using the old key; call WithKey with the new one.
func (c *Client) Rotate(ctx context.Context) (*Credential, error) {
	var cred Credential
	if err := c.do(ctx, http.MethodPost, "/self/rotate", nil, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
