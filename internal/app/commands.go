package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"condotel/internal/adapters/observability"
	"condotel/internal/domain"
)

type SyncService struct {
	backend  domain.BackendClient
	listings domain.ListingRepository
	refunds  domain.RefundRepository
	cache    domain.Cache
	events   domain.EventPublisher
	currency string
}

func NewSyncService(b domain.BackendClient, lr domain.ListingRepository, rr domain.RefundRepository,
	cache domain.Cache, events domain.EventPublisher, currency string) *SyncService {
	return &SyncService{backend: b, listings: lr, refunds: rr, cache: cache, events: events, currency: currency}
}

// missStatus classifies backend errors that end a sync gracefully.
// Zero means the error is unexpected and must bubble up.
func missStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return 404, "not found"
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrUnauthorized):
		return 403, "inactive"
	}
	return 0, ""
}

func (s *SyncService) SyncListing(ctx context.Context, id int64) error {
	key := strconv.FormatInt(id, 10)

	// 1) Listing first. 404/401/403 are recorded as misses.
	p, err := s.backend.GetListing(ctx, id)
	if err != nil {
		status, reason := missStatus(err)
		if status == 0 {
			observability.ObserveSyncError("listing", err)
			return err
		}
		_ = s.listings.LogMiss(ctx, "listing", key, status, reason)
		s.invalidateListing(ctx, id)
		observability.ObserveSync("listing", "miss")
		return nil
	}

	// 2) Rates: a missing rates resource means no override and no promotion.
	rates, rerr := s.backend.GetListingRates(ctx, id)
	if rerr != nil {
		status, reason := missStatus(rerr)
		if status == 0 {
			observability.ObserveSyncError("listing", rerr)
			return rerr
		}
		_ = s.listings.LogMiss(ctx, "rates", key, status, reason)
		rates = nil
	}

	l, err := mapListing(p, rates, s.currency)
	if err != nil {
		// Keep whatever is stored rather than quoting the listing for free.
		_ = s.listings.LogMiss(ctx, "listing", key, 422, err.Error())
		observability.ObserveSync("listing", "invalid")
		return fmt.Errorf("listing %d: %w", id, err)
	}
	if l.ID == 0 {
		l.ID = id
	}
	if err := s.listings.UpsertListing(ctx, l); err != nil {
		observability.ObserveSyncError("listing", err)
		return fmt.Errorf("upsert listing %d: %w", id, err)
	}
	s.invalidateListing(ctx, id)
	observability.ObserveSync("listing", "ok")

	s.publish(ctx, domain.EventListingSynced, key, map[string]any{
		"listing_id":   l.ID,
		"currency":     l.Currency,
		"nightly_rate": l.NightlyRate.StringFixed(2),
		"has_override": l.Override != nil,
		"promotion":    l.Promotion.Kind(),
		"active":       l.Active,
	})
	return nil
}

// SyncRefunds pulls every refund request of userID and returns how many were stored.
func (s *SyncService) SyncRefunds(ctx context.Context, userID string) (int, error) {
	raw, err := s.backend.ListRefunds(ctx, userID)
	if err != nil {
		status, reason := missStatus(err)
		if status == 0 {
			observability.ObserveSyncError("refunds", err)
			return 0, err
		}
		_ = s.listings.LogMiss(ctx, "refunds", userID, status, reason)
		invalidateRefunds(ctx, s.cache, userID)
		observability.ObserveSync("refunds", "miss")
		return 0, nil
	}

	rs := mapRefunds(userID, raw, s.currency)
	if len(rs) > 0 {
		if err := s.refunds.UpsertRefunds(ctx, rs); err != nil {
			observability.ObserveSyncError("refunds", err)
			return 0, fmt.Errorf("upsert refunds for %s: %w", userID, err)
		}
	}
	invalidateRefunds(ctx, s.cache, userID, refundIDs(rs)...)
	observability.ObserveSync("refunds", "ok")
	return len(rs), nil
}

func (s *SyncService) invalidateListing(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, listingKey(id))
	_ = s.cache.DelPrefix(ctx, fmt.Sprintf("quote:%d:", id))
}

func (s *SyncService) publish(ctx context.Context, eventType, key string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, key, payload); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("event", eventType).Str("key", key).Msg("publish failed")
	}
}

/********** refund resubmission **********/

type RefundService struct {
	backend  domain.BackendClient
	refunds  domain.RefundRepository
	cache    domain.Cache
	events   domain.EventPublisher
	policy   domain.ResubmissionPolicy
	currency string
}

func NewRefundService(b domain.BackendClient, rr domain.RefundRepository, cache domain.Cache,
	events domain.EventPublisher, policy domain.ResubmissionPolicy, currency string) *RefundService {
	return &RefundService{backend: b, refunds: rr, cache: cache, events: events, policy: policy, currency: currency}
}

func (s *RefundService) Policy() domain.ResubmissionPolicy { return s.policy }

// Resubmit re-files a rejected refund on behalf of its owner. The local gate
// only spares the backend an obviously refused call; the backend still decides.
func (s *RefundService) Resubmit(ctx context.Context, id, reason string) (domain.RefundRequest, error) {
	sess := domain.SessionFrom(ctx)
	if !sess.IsAuthenticated {
		return domain.RefundRequest{}, domain.ErrUnauthorized
	}

	r, err := loadRefund(ctx, s.refunds, s.backend, s.currency, id)
	if err != nil {
		return domain.RefundRequest{}, err
	}
	if r.UserID != sess.User.ID {
		return domain.RefundRequest{}, domain.ErrForbidden
	}

	allowed := s.policy.Allows(r)
	observability.ObserveRefundGate(allowed)
	if !allowed {
		return domain.RefundRequest{}, fmt.Errorf("%w: status=%q resubmissions=%d",
			domain.ErrNotEligible, r.Status, r.ResubmissionCount)
	}

	reason = strings.TrimSpace(reason)
	resp, err := s.backend.ResubmitRefund(ctx, id, reason)
	if err != nil {
		return domain.RefundRequest{}, err
	}

	updated := mapRefund(resp, s.currency)
	if updated.ID == "" || updated.Status == domain.RefundStatusUnknown {
		// Backend acknowledged without a usable body.
		updated = r
		updated.Status = domain.RefundPending
		updated.ResubmissionCount = r.ResubmissionCount + 1
		if reason != "" {
			updated.Reason = reason
		}
		updated.UpdatedAt = time.Now().UTC()
	}
	mergeRefund(&updated, r)

	if err := s.refunds.UpsertRefunds(ctx, []domain.RefundRequest{updated}); err != nil {
		return domain.RefundRequest{}, fmt.Errorf("store resubmitted refund %s: %w", id, err)
	}
	invalidateRefunds(ctx, s.cache, updated.UserID, updated.ID)

	if s.events != nil {
		if err := s.events.Publish(ctx, domain.EventRefundResubmitted, updated.ID, map[string]any{
			"refund_id":          updated.ID,
			"booking_id":         updated.BookingID,
			"user_id":            updated.UserID,
			"status":             updated.Status,
			"resubmission_count": updated.ResubmissionCount,
			"reason":             reason,
		}); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("refund_id", updated.ID).Msg("publish failed")
		}
	}
	return updated, nil
}

// mergeRefund fills fields the backend left out of its answer from prev.
func mergeRefund(dst *domain.RefundRequest, prev domain.RefundRequest) {
	if dst.ID == "" {
		dst.ID = prev.ID
	}
	if dst.UserID == "" {
		dst.UserID = prev.UserID
	}
	if dst.BookingID == "" {
		dst.BookingID = prev.BookingID
	}
	if dst.Amount.IsZero() {
		dst.Amount = prev.Amount
	}
	if dst.CreatedAt.IsZero() {
		dst.CreatedAt = prev.CreatedAt
	}
	if dst.UpdatedAt.IsZero() {
		dst.UpdatedAt = time.Now().UTC()
	}
}

// loadRefund reads from the store and falls back to the backend on a miss.
func loadRefund(ctx context.Context, repo domain.RefundRepository, backend domain.BackendClient,
	currency, id string) (domain.RefundRequest, error) {
	r, err := repo.GetRefund(ctx, id)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || backend == nil {
		return domain.RefundRequest{}, err
	}
	raw, berr := backend.GetRefund(ctx, id)
	if berr != nil {
		return domain.RefundRequest{}, berr
	}
	r = mapRefund(raw, currency)
	if r.ID == "" {
		r.ID = id
	}
	if err := repo.UpsertRefunds(ctx, []domain.RefundRequest{r}); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("refund_id", id).Msg("could not store fetched refund")
	}
	return r, nil
}

func refundIDs(rs []domain.RefundRequest) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func invalidateRefunds(ctx context.Context, cache domain.Cache, userID string, ids ...string) {
	if cache == nil {
		return
	}
	for _, id := range ids {
		_ = cache.Del(ctx, refundKey(id))
	}
	if userID != "" {
		_ = cache.DelPrefix(ctx, "refunds:"+userID+":")
	}
}

func listingKey(id int64) string { return fmt.Sprintf("listing:%d", id) }
func refundKey(id string) string { return "refund:" + id }
