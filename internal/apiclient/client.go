// Package apiclient implements ApiClient from spec.md §4.7: the request
// pipeline every TDX endpoint method runs (cache check, slot acquisition,
// rate-limit token, auth token, circuit breaker, retry, HTTP fetch, JSON
// decode and normalization, cache store, health bookkeeping), adapted from
// the teacher's cache-manager/service.go Get path (cache check → origin
// fetch → cache store → metrics) generalized with the additional
// resilience layers this spec requires in front of the origin fetch.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tra-cli/tra/internal/breaker"
	"github.com/tra-cli/tra/internal/cache"
	"github.com/tra-cli/tra/internal/keypool"
	"github.com/tra-cli/tra/internal/logging"
	"github.com/tra-cli/tra/internal/model"
	"github.com/tra-cli/tra/internal/retry"
)

// BaseURL is the TDX v2/v3 data API root (spec.md §6.1). A var rather
// than a const so tests can redirect it at an httptest.Server.
var BaseURL = "https://tdx.transportdata.tw"

// AttemptTimeout is the per-HTTP-attempt deadline (spec.md §5).
const AttemptTimeout = 30 * time.Second

// TTLs from spec.md §4.7's table.
const (
	ttlReferenceData = 7 * 24 * time.Hour // stations, lines, station-of-line, OD fare
	ttlDerivedData   = 24 * time.Hour     // line transfers, station exits
	ttlDailyData     = 24 * time.Hour     // daily OD/train/station timetable
	ttlAlerts        = 15 * time.Minute
)

// httpStatusError carries an HTTP status code so internal/retry's
// DefaultIsTransient can classify it without importing this package.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("tdx: unexpected status %d: %s", e.status, e.body)
}

func (e *httpStatusError) StatusCode() int { return e.status }

// Client implements one method per TDX endpoint used by this module.
type Client struct {
	httpClient *http.Client
	pool       *keypool.Pool
	cacheStore *cache.Store
	breaker    *breaker.Breaker
	retry      *retry.Runner
}

// New builds a Client wired to the given pool, cache, breaker, and retry
// runner, all shared across the process per spec.md §3 Ownership.
func New(pool *keypool.Pool, cacheStore *cache.Store, br *breaker.Breaker, rr *retry.Runner, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient, pool: pool, cacheStore: cacheStore, breaker: br, retry: rr}
}

// fetchResult carries the raw response body out of the breaker/retry
// closure. The list key of a TDX v3 envelope varies by endpoint
// (TrainTimetables, StationTimetables, ...), so callers decode these raw
// bytes into their own typed envelope.
type fetchResult struct {
	raw []byte
}

// fetch runs the full resilience pipeline for one cacheable GET: cache
// check, slot acquisition, rate limiting, auth, breaker+retry, and cache
// store on success. skipCache bypasses both the read and the store (used by live endpoints,
// which are never cached per spec.md §4.7 step 6).
func (c *Client) fetch(ctx context.Context, cacheKey string, ttl time.Duration, skipCache bool, url string) ([]byte, error) {
	if !skipCache {
		if cached, ok := c.cacheStore.Get(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	slot, err := c.pool.GetSlot()
	if err != nil {
		return nil, err
	}

	if err := slot.Limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	token, err := slot.Auth.GetToken(ctx)
	if err != nil {
		slot.RecordFailure(err)
		return nil, err
	}

	var result fetchResult
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retry.Run(func(retry.Attempt) error {
			body, fetchErr := c.doGet(ctx, url, token)
			if fetchErr != nil {
				return fetchErr
			}
			result.raw = body
			return nil
		}, func(err error, attempt int, nextDelay time.Duration) {
			logging.Warn(ctx, "retrying TDX request", map[string]interface{}{
				"url":         url,
				"attempt":     attempt,
				"next_delay":  nextDelay.String(),
				"error":       err.Error(),
			})
		})
	})

	if err != nil {
		slot.RecordFailure(err)
		return nil, classifyError(err)
	}
	slot.RecordSuccess()

	if !skipCache {
		if err := c.cacheStore.Set(ctx, cacheKey, result.raw, ttl); err != nil {
			logging.Warn(ctx, "failed to write cache entry", map[string]interface{}{
				"cache_key": cacheKey,
				"error":     err.Error(),
			})
		}
	}

	return result.raw, nil
}

func (c *Client) doGet(ctx context.Context, url, token string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, model.Wrap(model.CodeBadInput, "invalid request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tdx: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tdx: reading response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		authErr := model.New(model.CodeAuthError, fmt.Sprintf("tdx: auth rejected (status %d)", resp.StatusCode))
		authErr.HTTPStatus = resp.StatusCode
		return nil, authErr
	}
	if resp.StatusCode >= 300 {
		return nil, &httpStatusError{status: resp.StatusCode, body: string(body)}
	}

	return body, nil
}

// classifyError maps a pipeline failure to the spec.md §4.7 error surface
// when it isn't already one of our tagged codes.
func classifyError(err error) error {
	if _, ok := model.CodeOf(err); ok {
		return err
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		wrapped := model.Wrap(model.CodeAPIError, "tdx request failed", err).
			WithContext("http_status", fmt.Sprintf("%d", statusErr.status))
		wrapped.HTTPStatus = statusErr.status
		return wrapped
	}

	return model.Wrap(model.CodeAPIError, "tdx request failed", err)
}

func decodeEnvelope(body []byte, target interface{}) error {
	if err := json.Unmarshal(body, target); err != nil {
		return model.Wrap(model.CodeAPIError, "decoding tdx response", err)
	}
	return nil
}
