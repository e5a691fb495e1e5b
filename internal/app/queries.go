package app

import (
	"context"
	"fmt"
	"time"

	"condotel/internal/adapters/observability"
	"condotel/internal/domain"
)

// RefundView is a refund request plus what the current session may do with it.
type RefundView struct {
	domain.RefundRequest
	CanResubmit bool `json:"can_resubmit"`
}

type QueryService struct {
	listings domain.ListingRepository
	refunds  domain.RefundRepository
	backend  domain.BackendClient
	cache    domain.Cache
	cacheTTL time.Duration
	policy   domain.ResubmissionPolicy
	currency string
}

func NewQueryService(lr domain.ListingRepository, rr domain.RefundRepository, c domain.Cache,
	ttl time.Duration, policy domain.ResubmissionPolicy) *QueryService {
	return &QueryService{listings: lr, refunds: rr, cache: c, cacheTTL: ttl, policy: policy}
}

// WithBackend lets GetRefund fall through to the booking backend when the
// local store has not seen a refund yet.
func (s *QueryService) WithBackend(b domain.BackendClient, currency string) *QueryService {
	s.backend = b
	s.currency = currency
	return s
}

func (s *QueryService) ttl() int { return int(s.cacheTTL.Seconds()) }

func (s *QueryService) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	key := listingKey(id)
	var l domain.Listing
	if ok, _ := s.cache.Get(ctx, key, &l); ok {
		return l, nil
	}
	l, err := s.listings.GetListing(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	_ = s.cache.Set(ctx, key, l, s.ttl())
	return l, nil
}

func (s *QueryService) ListListings(ctx context.Context, q domain.ListingsQuery) (domain.ListingsPage, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	return s.listings.ListListings(ctx, q)
}

// Quote prices listing id for stay. A nil or empty stay is a display quote.
func (s *QueryService) Quote(ctx context.Context, id int64, stay *domain.StayWindow) (domain.Quote, error) {
	if stay != nil && !stay.Empty() && !stay.Valid() {
		return domain.Quote{}, domain.ErrInvalidStay
	}

	key := quoteKey(id, stay)
	var q domain.Quote
	if ok, _ := s.cache.Get(ctx, key, &q); ok {
		observability.ObserveQuote(q.OverrideApplied, string(q.Promotion))
		return q, nil
	}

	l, err := s.GetListing(ctx, id)
	if err != nil {
		return domain.Quote{}, err
	}
	if !l.Active {
		return domain.Quote{}, fmt.Errorf("listing %d is inactive: %w", id, domain.ErrNotFound)
	}
	q = l.Quote(stay)
	observability.ObserveQuote(q.OverrideApplied, string(q.Promotion))
	_ = s.cache.Set(ctx, key, q, s.ttl())
	return q, nil
}

// GetRefund returns a refund the session owns (admins see all).
func (s *QueryService) GetRefund(ctx context.Context, id string) (RefundView, error) {
	sess := domain.SessionFrom(ctx)
	if !sess.IsAuthenticated {
		return RefundView{}, domain.ErrUnauthorized
	}

	key := refundKey(id)
	var r domain.RefundRequest
	if ok, _ := s.cache.Get(ctx, key, &r); !ok {
		var err error
		r, err = loadRefund(ctx, s.refunds, s.backend, s.currency, id)
		if err != nil {
			return RefundView{}, err
		}
		_ = s.cache.Set(ctx, key, r, s.ttl())
	}

	if !sess.CanAccessRefund(r) {
		return RefundView{}, domain.ErrForbidden
	}
	return s.view(sess, r), nil
}

// ListRefunds lists the session's own refunds. Admins may pass q.UserID to
// look at someone else's, or leave it nil to list across users.
func (s *QueryService) ListRefunds(ctx context.Context, q domain.RefundsQuery) ([]RefundView, error) {
	sess := domain.SessionFrom(ctx)
	if !sess.IsAuthenticated {
		return nil, domain.ErrUnauthorized
	}
	if !sess.IsAdmin {
		uid := sess.User.ID
		q.UserID = &uid
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}

	var rs []domain.RefundRequest
	cacheable := q.UserID != nil
	key := ""
	if cacheable {
		status := "all"
		if q.Status != nil {
			status = string(*q.Status)
		}
		key = fmt.Sprintf("refunds:%s:%s:%d", *q.UserID, status, q.Limit)
		if ok, _ := s.cache.Get(ctx, key, &rs); ok {
			return s.views(sess, rs), nil
		}
	}

	rs, err := s.refunds.ListRefunds(ctx, q)
	if err != nil {
		return nil, err
	}
	if cacheable {
		_ = s.cache.Set(ctx, key, rs, s.ttl())
	}
	return s.views(sess, rs), nil
}

// view only offers resubmission to the owner; admins cannot resubmit for a guest.
func (s *QueryService) view(sess domain.Session, r domain.RefundRequest) RefundView {
	return RefundView{
		RefundRequest: r,
		CanResubmit:   sess.User.ID == r.UserID && s.policy.Allows(r),
	}
}

func (s *QueryService) views(sess domain.Session, rs []domain.RefundRequest) []RefundView {
	out := make([]RefundView, 0, len(rs))
	for _, r := range rs {
		out = append(out, s.view(sess, r))
	}
	return out
}

func quoteKey(id int64, stay *domain.StayWindow) string {
	in, out := "-", "-"
	if stay != nil && !stay.Empty() {
		in, out = stay.CheckIn.String(), stay.CheckOut.String()
	}
	return fmt.Sprintf("quote:%d:%s:%s", id, in, out)
}
