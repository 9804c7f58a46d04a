package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbd888/bazaar/internal/circuitbreaker"
	"github.com/mbd888/bazaar/internal/metrics"
	"github.com/mbd888/bazaar/internal/retry"
)

// Poller refreshes the snapshot cache from the upstream feed on a fixed
// interval. A failed fetch keeps the previous data visible and only flips
// the status, matching what dashboards expect: stale quotes beat no
// quotes. Transient fetch errors are retried within a poll; a feed that
// stays down trips the breaker so polls stop hammering it until a probe
// succeeds.
type Poller struct {
	url      string
	interval time.Duration
	cache    *Cache
	client   *http.Client
	breaker  *circuitbreaker.Breaker
	log      *slog.Logger

	retryAttempts int
	retryDelay    time.Duration

	// OnUpdate, when set, is called with each successfully fetched
	// snapshot after it is stored.
	OnUpdate func(*Snapshot)
}

// NewPoller creates a poller for the given feed URL.
func NewPoller(url string, interval time.Duration, cache *Cache, log *slog.Logger) *Poller {
	return &Poller{
		url:           url,
		interval:      interval,
		cache:         cache,
		client:        &http.Client{Timeout: 30 * time.Second},
		breaker:       circuitbreaker.New(3, 5*interval),
		log:           log,
		retryAttempts: 3,
		retryDelay:    250 * time.Millisecond,
	}
}

// Run polls until the context is cancelled. The first fetch happens
// immediately so the cache is warm as soon as the feed answers once.
func (p *Poller) Run(ctx context.Context) {
	if p.url == "" {
		p.log.Warn("price feed URL not configured, snapshot polling disabled")
		return
	}

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SnapshotAge.Set(p.cache.Age(time.Now()).Seconds())
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if !p.breaker.Allow() {
		metrics.SnapshotRefreshesTotal.WithLabelValues("skipped").Inc()
		p.log.Debug("feed circuit open, skipping poll")
		return
	}

	var snap *Snapshot
	err := retry.Do(ctx, p.retryAttempts, p.retryDelay, func() error {
		var ferr error
		snap, ferr = p.fetch(ctx)
		return ferr
	})
	if err != nil {
		p.breaker.Failure()
		metrics.SnapshotRefreshesTotal.WithLabelValues("error").Inc()
		p.log.Error("price feed fetch failed", "error", err)
		prev := p.cache.Load()
		p.cache.Store(&Snapshot{
			Data:        prev.Data,
			LastUpdated: prev.LastUpdated,
			Status:      "Error: " + err.Error(),
			FetchedAt:   prev.FetchedAt,
		})
		return
	}

	p.breaker.Success()
	metrics.SnapshotRefreshesTotal.WithLabelValues("ok").Inc()
	metrics.SnapshotAge.Set(0)
	p.cache.Store(snap)
	p.log.Debug("snapshot refreshed", "entries", len(snap.Data))
	if p.OnUpdate != nil {
		p.OnUpdate(snap)
	}
}

// fetch reads the feed once and builds a complete snapshot. The feed may
// answer either a bare quote object or a {data, last_updated} envelope.
func (p *Poller) fetch(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("feed answered %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// A 4xx will not heal on retry within this poll
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	var envelope struct {
		Data        map[string]any `json:"data"`
		LastUpdated string         `json:"last_updated"`
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode feed body: %w", err)
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Data == nil {
		var flat map[string]any
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, fmt.Errorf("decode feed body: %w", err)
		}
		delete(flat, "last_updated")
		delete(flat, "status")
		envelope.Data = flat
	}

	now := time.Now().UTC()
	if envelope.LastUpdated == "" {
		envelope.LastUpdated = now.Format(time.RFC3339)
	}
	return &Snapshot{
		Data:        envelope.Data,
		LastUpdated: envelope.LastUpdated,
		Status:      StatusOK,
		FetchedAt:   now,
	}, nil
}
