package domain

import (
	"github.com/shopspring/decimal"
)

type PromotionKind string

const (
	PromotionNone       PromotionKind = "none"
	PromotionPercentOff PromotionKind = "percent_off"
	PromotionAmountOff  PromotionKind = "amount_off"
)

var hundred = decimal.NewFromInt(100)

// Promotion is one of PercentOff, AmountOff or NoPromotion.
// The set is closed: only this package can add variants.
type Promotion interface {
	Kind() PromotionKind
	Value() decimal.Decimal
	isPromotion()
}

// PercentOff takes Percent (0..100) off the base rate.
type PercentOff struct{ Percent decimal.Decimal }

// AmountOff takes a fixed Amount off the base rate, never below zero.
type AmountOff struct{ Amount decimal.Decimal }

type NoPromotion struct{}

func (PercentOff) Kind() PromotionKind  { return PromotionPercentOff }
func (AmountOff) Kind() PromotionKind   { return PromotionAmountOff }
func (NoPromotion) Kind() PromotionKind { return PromotionNone }

func (p PercentOff) Value() decimal.Decimal { return p.Percent }
func (a AmountOff) Value() decimal.Decimal  { return a.Amount }
func (NoPromotion) Value() decimal.Decimal  { return decimal.Zero }

func (PercentOff) isPromotion()  {}
func (AmountOff) isPromotion()   {}
func (NoPromotion) isPromotion() {}

// NewPromotion folds the backend's two optional discount fields into one variant.
// A percent in [0,100] wins over any amount; a non-negative amount is used otherwise.
// Out-of-range values count as unset.
func NewPromotion(percentOff, amountOff *decimal.Decimal) Promotion {
	if percentOff != nil && !percentOff.IsNegative() && percentOff.LessThanOrEqual(hundred) {
		return PercentOff{Percent: *percentOff}
	}
	if amountOff != nil && !amountOff.IsNegative() {
		return AmountOff{Amount: *amountOff}
	}
	return NoPromotion{}
}

// PromotionOf rebuilds a variant from its stored (kind, value) pair.
func PromotionOf(kind PromotionKind, value decimal.Decimal) Promotion {
	switch kind {
	case PromotionPercentOff:
		return NewPromotion(&value, nil)
	case PromotionAmountOff:
		return NewPromotion(nil, &value)
	}
	return NoPromotion{}
}

// ApplyPromotion returns the nightly rate after promo.
func ApplyPromotion(baseRate decimal.Decimal, promo Promotion) decimal.Decimal {
	switch p := promo.(type) {
	case PercentOff:
		return baseRate.Mul(decimal.NewFromInt(1).Sub(p.Percent.Div(hundred)))
	case AmountOff:
		return decimal.Max(decimal.Zero, baseRate.Sub(p.Amount))
	default:
		return baseRate
	}
}

type promotionJSON struct {
	Kind  PromotionKind   `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

func encodePromotion(p Promotion) promotionJSON {
	if p == nil {
		p = NoPromotion{}
	}
	return promotionJSON{Kind: p.Kind(), Value: p.Value()}
}

func (j promotionJSON) decode() Promotion { return PromotionOf(j.Kind, j.Value) }
