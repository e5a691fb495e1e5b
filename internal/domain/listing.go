package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Listing struct {
	ID          int64
	HostID      *string
	Title       *string
	City        *string
	Country     *string
	Currency    string
	NightlyRate decimal.Decimal
	Override    *RateOverride
	Promotion   Promotion
	Active      bool
	RawJSON     []byte // backend listing payload as received
	UpdatedAt   time.Time
}

// Quote is what a guest is shown for a listing, per night and for the stay.
type Quote struct {
	ListingID       int64           `json:"listing_id"`
	Currency        string          `json:"currency"`
	Stay            *StayWindow     `json:"stay,omitempty"`
	Nights          int             `json:"nights"`
	OverrideApplied bool            `json:"override_applied"`
	Promotion       PromotionKind   `json:"promotion"`
	BaseRate        decimal.Decimal `json:"base_rate"`
	FinalRate       decimal.Decimal `json:"final_rate"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
}

// Quote prices l for stay; a nil stay gives a display quote for one night.
func (l Listing) Quote(stay *StayWindow) Quote {
	promo := l.Promotion
	if promo == nil {
		promo = NoPromotion{}
	}
	res := ResolveFinalPrice(l.NightlyRate, l.Override, promo, stay)
	q := Quote{
		ListingID:       l.ID,
		Currency:        l.Currency,
		OverrideApplied: OverrideApplies(l.Override, stay),
		Promotion:       promo.Kind(),
		BaseRate:        res.BaseRate,
		FinalRate:       res.FinalRate,
		Discount:        res.Discount,
		Total:           res.FinalRate,
	}
	if stay != nil && !stay.Empty() {
		s := *stay
		q.Stay = &s
		q.Nights = stay.Nights()
		if q.Nights > 1 {
			q.Total = res.FinalRate.Mul(decimal.NewFromInt(int64(q.Nights)))
		}
	}
	return q
}

type listingJSON struct {
	ID          int64           `json:"id"`
	HostID      *string         `json:"host_id,omitempty"`
	Title       *string         `json:"title,omitempty"`
	City        *string         `json:"city,omitempty"`
	Country     *string         `json:"country,omitempty"`
	Currency    string          `json:"currency"`
	NightlyRate decimal.Decimal `json:"nightly_rate"`
	Override    *RateOverride   `json:"override,omitempty"`
	Promotion   promotionJSON   `json:"promotion"`
	Active      bool            `json:"active"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (l Listing) MarshalJSON() ([]byte, error) {
	return json.Marshal(listingJSON{
		ID:          l.ID,
		HostID:      l.HostID,
		Title:       l.Title,
		City:        l.City,
		Country:     l.Country,
		Currency:    l.Currency,
		NightlyRate: l.NightlyRate,
		Override:    l.Override,
		Promotion:   encodePromotion(l.Promotion),
		Active:      l.Active,
		UpdatedAt:   l.UpdatedAt,
	})
}

func (l *Listing) UnmarshalJSON(b []byte) error {
	var j listingJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*l = Listing{
		ID:          j.ID,
		HostID:      j.HostID,
		Title:       j.Title,
		City:        j.City,
		Country:     j.Country,
		Currency:    j.Currency,
		NightlyRate: j.NightlyRate,
		Override:    j.Override,
		Promotion:   j.Promotion.decode(),
		Active:      j.Active,
		UpdatedAt:   j.UpdatedAt,
	}
	return nil
}
