// internal/adapters/backend/client.go
package backend

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"condotel/internal/adapters/observability"
	"condotel/internal/domain"
)

const service = "booking-backend"

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if strings.TrimSpace(base) == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Public API (current routes first, legacy condotel routes as fallback) ----

func (c *Client) ListListingIDs(ctx context.Context, page, size int) ([]int64, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(size))
	candidates := []string{
		c.base + "/listings?" + q.Encode(),
		c.base + "/condotel?" + q.Encode(),
	}
	var raw any
	if err := c.getFirst(ctx, "list_listings", candidates, &raw); err != nil {
		return nil, err
	}
	items := unwrapList(raw)
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if id, ok := itemID(it); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) GetListing(ctx context.Context, id int64) (map[string]any, error) {
	candidates := []string{
		fmt.Sprintf("%s/listings/%d", c.base, id),
		fmt.Sprintf("%s/condotel/%d", c.base, id), // legacy
	}
	var raw any
	if err := c.getFirst(ctx, "get_listing", candidates, &raw); err != nil {
		return nil, err
	}
	return unwrapObject(raw), nil
}

// GetListingRates returns the listing's price override and promotion payload.
func (c *Client) GetListingRates(ctx context.Context, id int64) (map[string]any, error) {
	candidates := []string{
		fmt.Sprintf("%s/listings/%d/rates", c.base, id),
		fmt.Sprintf("%s/condotel/%d/prices", c.base, id), // legacy
	}
	var raw any
	if err := c.getFirst(ctx, "get_listing_rates", candidates, &raw); err != nil {
		return nil, err
	}
	return unwrapObject(raw), nil
}

func (c *Client) ListRefunds(ctx context.Context, userID string) ([]map[string]any, error) {
	candidates := []string{
		fmt.Sprintf("%s/users/%s/refunds", c.base, url.PathEscape(userID)),
		fmt.Sprintf("%s/refund-requests?userId=%s", c.base, url.QueryEscape(userID)), // legacy
	}
	var raw any
	if err := c.getFirst(ctx, "list_refunds", candidates, &raw); err != nil {
		return nil, err
	}
	items := unwrapList(raw)
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Client) GetRefund(ctx context.Context, id string) (map[string]any, error) {
	candidates := []string{
		fmt.Sprintf("%s/refunds/%s", c.base, url.PathEscape(id)),
		fmt.Sprintf("%s/refund-requests/%s", c.base, url.PathEscape(id)), // legacy
	}
	var raw any
	if err := c.getFirst(ctx, "get_refund", candidates, &raw); err != nil {
		return nil, err
	}
	return unwrapObject(raw), nil
}

// ResubmitRefund files a rejected refund again. It is not retried on 5xx.
func (c *Client) ResubmitRefund(ctx context.Context, id string, reason string) (map[string]any, error) {
	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/refunds/%s/resubmit", c.base, url.PathEscape(id))
	var raw any
	if err := c.do(ctx, http.MethodPost, "resubmit_refund", u, body, &raw); err != nil {
		return nil, err
	}
	return unwrapObject(raw), nil
}

// ---- Internals ----

var (
	ErrNotFound     = fmt.Errorf("backend: %w", domain.ErrNotFound)
	ErrUnauthorized = fmt.Errorf("backend: %w", domain.ErrUnauthorized)
	ErrForbidden    = fmt.Errorf("backend: %w", domain.ErrForbidden)
	ErrConflict     = fmt.Errorf("backend: %w", domain.ErrNotEligible)
)

func (c *Client) getFirst(ctx context.Context, endpoint string, urls []string, out any) error {
	var last error
	for _, u := range urls {
		if err := c.do(ctx, http.MethodGet, endpoint, u, nil, out); err != nil {
			if errors.Is(err, ErrNotFound) {
				last = err
				continue // try next pattern
			}
			return err // non-404: stop early
		}
		return nil // success
	}
	if last != nil {
		return last
	}
	return errors.New("no candidate URL succeeded")
}

// do performs one logical request with client-side rate limiting and JSON decode into out.
// GETs are retried on 429, transient 5xx and network errors; other methods only on 429.
func (c *Client) do(ctx context.Context, method, endpoint, u string, body []byte, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	idempotent := method == http.MethodGet

	var lastErr error
	for i := 0; i < 4; i++ {
		// build a fresh request each attempt
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return err
		}
		if c.key != "" {
			req.Header.Set("X-API-Key", c.key)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "condotel-gateway/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(service, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if idempotent && i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal(service, endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if errors.Is(err, io.EOF) {
				return nil // empty body
			}
			return err

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return ErrForbidden

		case http.StatusConflict, http.StatusUnprocessableEntity:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("%w: %s", ErrConflict, strings.TrimSpace(string(b)))

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			retryable := idempotent || resp.StatusCode == http.StatusTooManyRequests
			if retryable && i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// unwrapObject accepts a bare object or one wrapped in data/result.
func unwrapObject(raw any) map[string]any {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	for _, k := range []string{"data", "result"} {
		if inner, ok := m[k].(map[string]any); ok {
			return inner
		}
	}
	return m
}

// unwrapList accepts a bare array or one wrapped in data/items/content.
func unwrapList(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case map[string]any:
		for _, k := range []string{"data", "items", "content", "results"} {
			if inner, ok := v[k].([]any); ok {
				return inner
			}
		}
	}
	return nil
}

func itemID(it any) (int64, bool) {
	switch v := it.(type) {
	case float64:
		return int64(v), true
	case map[string]any:
		for _, k := range []string{"id", "listingId", "condotelId"} {
			switch id := v[k].(type) {
			case float64:
				return int64(id), true
			case string:
				if n, err := strconv.ParseInt(id, 10, 64); err == nil {
					return n, true
				}
			}
		}
	}
	return 0, false
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns 200ms, 400ms, 800ms... plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
