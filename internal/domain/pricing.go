package domain

import (
	"github.com/shopspring/decimal"
)

// RateOverride replaces the standing nightly rate for stays that fall
// entirely inside [ValidFrom, ValidTo].
type RateOverride struct {
	Amount    decimal.Decimal `json:"amount"`
	ValidFrom Date            `json:"valid_from"`
	ValidTo   Date            `json:"valid_to"`
}

func (o RateOverride) wellFormed() bool {
	return o.ValidFrom.Valid() && o.ValidTo.Valid() && !o.ValidTo.Before(o.ValidFrom)
}

// StayWindow is a guest's check-in / check-out pair.
type StayWindow struct {
	CheckIn  Date `json:"check_in"`
	CheckOut Date `json:"check_out"`
}

// Empty reports that neither date was given (a display-only quote).
func (s StayWindow) Empty() bool { return s.CheckIn.IsZero() && s.CheckOut.IsZero() }

func (s StayWindow) Valid() bool {
	return s.CheckIn.Valid() && s.CheckOut.Valid() && !s.CheckOut.Before(s.CheckIn)
}

func (s StayWindow) Nights() int {
	if !s.Valid() {
		return 0
	}
	return s.CheckIn.DaysUntil(s.CheckOut)
}

// PriceResolution is the outcome of ResolveFinalPrice.
type PriceResolution struct {
	BaseRate  decimal.Decimal `json:"base_rate"`
	FinalRate decimal.Decimal `json:"final_rate"`
	Discount  decimal.Decimal `json:"discount"`
}

// OverrideApplies reports whether override replaces the standing rate for stay.
// A nil or empty stay means a display-only quote and always takes the override.
// Partial overlap does not count.
func OverrideApplies(override *RateOverride, stay *StayWindow) bool {
	if override == nil {
		return false
	}
	if stay == nil || stay.Empty() {
		return true
	}
	if !override.wellFormed() || !stay.Valid() {
		return false
	}
	return stay.CheckIn.Within(override.ValidFrom, override.ValidTo) &&
		stay.CheckOut.Within(override.ValidFrom, override.ValidTo)
}

// ResolveBaseRate picks the nightly rate before promotions.
func ResolveBaseRate(nightly decimal.Decimal, override *RateOverride, stay *StayWindow) decimal.Decimal {
	if OverrideApplies(override, stay) {
		return override.Amount
	}
	return nightly
}

// ResolveFinalPrice composes ResolveBaseRate and ApplyPromotion.
func ResolveFinalPrice(nightly decimal.Decimal, override *RateOverride, promo Promotion, stay *StayWindow) PriceResolution {
	base := ResolveBaseRate(nightly, override, stay)
	final := ApplyPromotion(base, promo)
	return PriceResolution{
		BaseRate:  base,
		FinalRate: final,
		Discount:  base.Sub(final),
	}
}
