// Package orbital fetches TLE text from the external orbital propagation
// service (spec.md §6's ORBITAL_SERVICE_URL) and upserts the parsed record
// onto a satellite's durable TLE fields. The HTTP call is wrapped in a named
// internal/breaker.Breaker, as the teacher wrapped its Cloud Core calls in
// internal/infra/healing.CircuitBreaker. Only failures that breaker.Classify
// reports as timeouts count toward tripping it: a 5xx response and other
// transport errors (a refused connection included) come back as plain
// errors, are classed ClassOther, and do not trip the breaker.
package orbital

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/stellarops/stellarops/internal/breaker"
	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/tle"
)

// BreakerName is the internal/breaker registry key for every orbital
// service call, used by the daemon composition root to wire CircuitState
// and CircuitTrips metrics to this client's breaker.
const BreakerName = "orbital_service"

// Config controls the client's target and polling cadence.
type Config struct {
	BaseURL        string        // e.g. https://orbital.example.com; empty disables refresh
	RequestTimeout time.Duration // default 5s
	RefreshEvery   time.Duration // default 6h
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        os.Getenv("ORBITAL_SERVICE_URL"),
		RequestTimeout: 5 * time.Second,
		RefreshEvery:   6 * time.Hour,
	}
}

// Client fetches and persists TLE updates for registered satellites.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *breaker.Breaker
	store   domain.Store
	logger  *log.Logger

	stopCh chan struct{}
}

func New(cfg Config, store domain.Store, br *breaker.Breaker) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = 6 * time.Hour
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		breaker: br,
		store:   store,
		logger:  log.New(os.Stderr, "[orbital] ", log.LstdFlags),
		stopCh:  make(chan struct{}),
	}
}

// Enabled reports whether a service URL was configured.
func (c *Client) Enabled() bool { return c.cfg.BaseURL != "" }

// Refresh fetches the current TLE for satelliteID and upserts it onto the
// store. The fetch runs through the breaker so a string of failures trips
// the circuit instead of piling up blocked goroutines against a down
// service.
func (c *Client) Refresh(ctx context.Context, satelliteID string) error {
	if !c.Enabled() {
		return domain.NewError(domain.KindValidation, "orbital service url not configured")
	}

	result, err := c.breaker.Call(ctx, func(ctx context.Context) (any, error) {
		return c.fetch(ctx, satelliteID)
	})
	if err != nil {
		return err
	}
	record, ok := result.(domain.TLE)
	if !ok {
		return domain.NewError(domain.KindParseError, "orbital service returned no parseable TLE")
	}

	if err := c.store.UpsertTLE(ctx, satelliteID, record); err != nil {
		return domain.WrapError(domain.KindTransient, "upsert tle", err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, satelliteID string) (any, error) {
	url := fmt.Sprintf("%s/tle/%s", c.cfg.BaseURL, satelliteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("orbital service %s: %s", url, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewError(domain.KindNotFound, "no tle for "+satelliteID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	records := tle.ParseStream(string(body))
	if len(records) == 0 {
		return nil, domain.NewError(domain.KindParseError, "orbital service response had no valid TLE")
	}
	return records[0], nil
}

// RunPeriodic refreshes every satellite in ids on cfg.RefreshEvery until ctx
// is cancelled or Stop is called. ids is re-evaluated each tick so newly
// registered satellites are picked up without a restart.
func (c *Client) RunPeriodic(ctx context.Context, ids func() []string) {
	if !c.Enabled() {
		return
	}
	ticker := time.NewTicker(c.cfg.RefreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			for _, id := range ids() {
				if err := c.Refresh(ctx, id); err != nil {
					c.logger.Printf("refresh %s: %v", id, err)
				}
			}
		}
	}
}

func (c *Client) Stop() { close(c.stopCh) }
