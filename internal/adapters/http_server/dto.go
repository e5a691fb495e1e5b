package httpserver

import (
	"time"

	"github.com/shopspring/decimal"

	"condotel/internal/app"
	"condotel/internal/domain"
)

// money renders d with two decimals. Math upstream stays exact.
func money(d decimal.Decimal) string { return d.Round(2).StringFixed(2) }

type overrideDTO struct {
	Amount    string `json:"amount"`
	ValidFrom string `json:"valid_from,omitempty"`
	ValidTo   string `json:"valid_to,omitempty"`
}

type promotionDTO struct {
	Kind  domain.PromotionKind `json:"kind"`
	Value string               `json:"value,omitempty"`
}

type listingDTO struct {
	ID          int64        `json:"id"`
	HostID      *string      `json:"host_id,omitempty"`
	Title       *string      `json:"title,omitempty"`
	City        *string      `json:"city,omitempty"`
	Country     *string      `json:"country,omitempty"`
	Currency    string       `json:"currency"`
	NightlyRate string       `json:"nightly_rate"`
	Override    *overrideDTO `json:"override,omitempty"`
	Promotion   promotionDTO `json:"promotion"`
	DisplayRate string       `json:"display_rate"`
	UpdatedAt   *time.Time   `json:"updated_at,omitempty"`
}

func toListingDTO(l domain.Listing) listingDTO {
	promo := l.Promotion
	if promo == nil {
		promo = domain.NoPromotion{}
	}
	out := listingDTO{
		ID:          l.ID,
		HostID:      l.HostID,
		Title:       l.Title,
		City:        l.City,
		Country:     l.Country,
		Currency:    l.Currency,
		NightlyRate: money(l.NightlyRate),
		Promotion:   promotionDTO{Kind: promo.Kind()},
		DisplayRate: money(l.Quote(nil).FinalRate),
	}
	if promo.Kind() != domain.PromotionNone {
		out.Promotion.Value = money(promo.Value())
	}
	if o := l.Override; o != nil {
		out.Override = &overrideDTO{
			Amount:    money(o.Amount),
			ValidFrom: o.ValidFrom.String(),
			ValidTo:   o.ValidTo.String(),
		}
	}
	if !l.UpdatedAt.IsZero() {
		t := l.UpdatedAt.UTC()
		out.UpdatedAt = &t
	}
	return out
}

type listingsPageDTO struct {
	Items      []listingDTO `json:"items"`
	NextCursor *int64       `json:"next_cursor,omitempty"`
}

type quoteDTO struct {
	ListingID       int64                `json:"listing_id"`
	Currency        string               `json:"currency"`
	CheckIn         string               `json:"check_in,omitempty"`
	CheckOut        string               `json:"check_out,omitempty"`
	Nights          int                  `json:"nights"`
	OverrideApplied bool                 `json:"override_applied"`
	Promotion       domain.PromotionKind `json:"promotion"`
	BaseRate        string               `json:"base_rate"`
	FinalRate       string               `json:"final_rate"`
	Discount        string               `json:"discount"`
	Total           string               `json:"total"`
}

func toQuoteDTO(q domain.Quote) quoteDTO {
	out := quoteDTO{
		ListingID:       q.ListingID,
		Currency:        q.Currency,
		Nights:          q.Nights,
		OverrideApplied: q.OverrideApplied,
		Promotion:       q.Promotion,
		BaseRate:        money(q.BaseRate),
		FinalRate:       money(q.FinalRate),
		Discount:        money(q.Discount),
		Total:           money(q.Total),
	}
	if q.Stay != nil {
		out.CheckIn = q.Stay.CheckIn.String()
		out.CheckOut = q.Stay.CheckOut.String()
	}
	return out
}

type refundDTO struct {
	ID                string              `json:"id"`
	BookingID         string              `json:"booking_id,omitempty"`
	UserID            string              `json:"user_id"`
	Amount            string              `json:"amount"`
	Currency          string              `json:"currency"`
	Reason            string              `json:"reason,omitempty"`
	RejectionReason   string              `json:"rejection_reason,omitempty"`
	Status            domain.RefundStatus `json:"status"`
	ResubmissionCount int                 `json:"resubmission_count"`
	CanResubmit       bool                `json:"can_resubmit"`
	CreatedAt         *time.Time          `json:"created_at,omitempty"`
	UpdatedAt         *time.Time          `json:"updated_at,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func toRefundDTO(v app.RefundView) refundDTO {
	return refundDTO{
		ID:                v.ID,
		BookingID:         v.BookingID,
		UserID:            v.UserID,
		Amount:            money(v.Amount),
		Currency:          v.Currency,
		Reason:            v.Reason,
		RejectionReason:   v.RejectionReason,
		Status:            v.Status,
		ResubmissionCount: v.ResubmissionCount,
		CanResubmit:       v.CanResubmit,
		CreatedAt:         timePtr(v.CreatedAt),
		UpdatedAt:         timePtr(v.UpdatedAt),
	}
}
