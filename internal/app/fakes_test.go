package app_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"condotel/internal/domain"
)

// ---- fakes ----

type miss struct {
	kind, id string
	status   int
}

type fakeListingRepo struct {
	mu       sync.Mutex
	listings map[int64]domain.Listing
	misses   []miss
	reads    int
}

func (f *fakeListingRepo) UpsertListing(ctx context.Context, l domain.Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listings == nil {
		f.listings = map[int64]domain.Listing{}
	}
	f.listings[l.ID] = l
	return nil
}

func (f *fakeListingRepo) LogMiss(ctx context.Context, kind, id string, status int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.misses = append(f.misses, miss{kind: kind, id: id, status: status})
	return nil
}

func (f *fakeListingRepo) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	l, ok := f.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (f *fakeListingRepo) ListListings(ctx context.Context, q domain.ListingsQuery) (domain.ListingsPage, error) {
	var out domain.ListingsPage
	for _, l := range f.listings {
		if q.City == nil || (l.City != nil && strings.EqualFold(*l.City, *q.City)) {
			out.Items = append(out.Items, l)
		}
	}
	return out, nil
}

type fakeRefundRepo struct {
	refunds map[string]domain.RefundRequest
	lastQ   domain.RefundsQuery
}

func (f *fakeRefundRepo) UpsertRefunds(ctx context.Context, rs []domain.RefundRequest) error {
	if f.refunds == nil {
		f.refunds = map[string]domain.RefundRequest{}
	}
	for _, r := range rs {
		f.refunds[r.ID] = r
	}
	return nil
}

func (f *fakeRefundRepo) GetRefund(ctx context.Context, id string) (domain.RefundRequest, error) {
	r, ok := f.refunds[id]
	if !ok {
		return domain.RefundRequest{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeRefundRepo) ListRefunds(ctx context.Context, q domain.RefundsQuery) ([]domain.RefundRequest, error) {
	f.lastQ = q
	var out []domain.RefundRequest
	for _, r := range f.refunds {
		if q.UserID != nil && r.UserID != *q.UserID {
			continue
		}
		if q.Status != nil && r.Status != *q.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type fakeBackend struct {
	listings     map[int64]map[string]any
	rates        map[int64]map[string]any
	ratesErr     error
	refunds      map[string][]map[string]any
	refundByID   map[string]map[string]any
	resubmitResp map[string]any
	resubmitErr  error
	resubmitted  []string
}

func (f *fakeBackend) ListListingIDs(ctx context.Context, page, size int) ([]int64, error) {
	var ids []int64
	for id := range f.listings {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeBackend) GetListing(ctx context.Context, id int64) (map[string]any, error) {
	p, ok := f.listings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeBackend) GetListingRates(ctx context.Context, id int64) (map[string]any, error) {
	if f.ratesErr != nil {
		return nil, f.ratesErr
	}
	r, ok := f.rates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeBackend) ListRefunds(ctx context.Context, userID string) ([]map[string]any, error) {
	rs, ok := f.refunds[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rs, nil
}

func (f *fakeBackend) GetRefund(ctx context.Context, id string) (map[string]any, error) {
	r, ok := f.refundByID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeBackend) ResubmitRefund(ctx context.Context, id, reason string) (map[string]any, error) {
	f.resubmitted = append(f.resubmitted, id)
	return f.resubmitResp, f.resubmitErr
}

// fakeCache round-trips values through JSON like the redis adapter does.
type fakeCache struct {
	store map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.store, key)
	return nil
}

func (c *fakeCache) DelPrefix(ctx context.Context, prefix string) error {
	for k := range c.store {
		if strings.HasPrefix(k, prefix) {
			delete(c.store, k)
		}
	}
	return nil
}

func (c *fakeCache) has(key string) bool {
	_, ok := c.store[key]
	return ok
}

type published struct {
	eventType, key string
	payload        any
}

type fakePublisher struct {
	events []published
}

func (p *fakePublisher) Publish(ctx context.Context, eventType, key string, payload any) error {
	p.events = append(p.events, published{eventType: eventType, key: key, payload: payload})
	return nil
}

func ptr[T any](v T) *T { return &v }

func asUser(id string) context.Context {
	return domain.WithSession(context.Background(), domain.Session{
		IsAuthenticated: true,
		User:            domain.User{ID: id, Role: domain.RoleGuest},
	})
}

func asAdmin() context.Context {
	return domain.WithSession(context.Background(), domain.Session{
		IsAuthenticated: true,
		IsAdmin:         true,
		User:            domain.User{ID: "admin-1", Role: domain.RoleAdmin},
	})
}
