package app

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"condotel/internal/domain"
)

/********** alias registries (single source of truth) **********/

var listingAliases = map[string][]string{
	"id":       {"id", "listing_id", "listingId", "condotel_id", "condotelId"},
	"host_id":  {"host_id", "hostId", "host.id", "owner_id", "ownerId"},
	"title":    {"title", "name", "listing_name"},
	"city":     {"city", "address.city", "location.city", "resort.city"},
	"country":  {"country", "address.country", "location.country", "country_code"},
	"currency": {"currency", "currency_code", "currencyCode"},
	"nightly":  {"nightly_price", "nightlyPrice", "price", "pricePerNight", "price_per_night", "base_price", "basePrice"},
	"status":   {"status", "state"},
	"active":   {"active", "is_active", "isActive"},
}

var rateAliases = map[string][]string{
	"override_amount": {"special_price", "specialPrice", "override.amount", "override.price"},
	"override_from":   {"valid_from", "validFrom", "override.valid_from", "override.start_date", "start_date", "startDate"},
	"override_to":     {"valid_to", "validTo", "override.valid_to", "override.end_date", "end_date", "endDate"},
	"percent_off":     {"percent_off", "percentOff", "discount_percent", "discountPercent", "promotion.percent_off"},
	"amount_off":      {"amount_off", "amountOff", "discount_amount", "discountAmount", "promotion.amount_off"},
}

// inlineRateAliases apply when rates ride on the listing payload itself, where
// bare start/end dates mean something other than an override window.
var inlineRateAliases = map[string][]string{
	"override_amount": rateAliases["override_amount"],
	"override_from":   {"valid_from", "validFrom", "override.valid_from", "override.start_date"},
	"override_to":     {"valid_to", "validTo", "override.valid_to", "override.end_date"},
	"percent_off":     rateAliases["percent_off"],
	"amount_off":      rateAliases["amount_off"],
}

var refundAliases = map[string][]string{
	"id":                 {"id", "refund_id", "refundId", "refund_request_id", "refundRequestId"},
	"booking_id":         {"booking_id", "bookingId", "booking.id"},
	"user_id":            {"user_id", "userId", "customer_id", "customerId", "user.id"},
	"amount":             {"amount", "refund_amount", "refundAmount"},
	"currency":           {"currency", "currency_code"},
	"reason":             {"reason", "refund_reason"},
	"rejection_reason":   {"rejection_reason", "rejectionReason", "reject_reason", "admin_note"},
	"status":             {"status", "refund_status", "refundStatus"},
	"resubmission_count": {"resubmission_count", "resubmissionCount", "resubmit_count", "resubmitCount"},
	"created_at":         {"created_at", "createdAt"},
	"updated_at":         {"updated_at", "updatedAt"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns a string (or a stringified number) at path, else "".
func lookupStr(m map[string]any, path string) string {
	switch v := lookupAny(m, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return &s
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

var (
	groupedAmount = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)
	commaDecimal  = regexp.MustCompile(`^-?\d+,\d{1,2}$`)
)

// parseAmount reads "1000000", "1000000.50", "800,000" and "8,5". A comma is a
// decimal point only when it is the sole separator with one or two digits after it.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return decimal.Decimal{}, false
	case groupedAmount.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case commaDecimal.MatchString(s):
		s = strings.Replace(s, ",", ".", 1)
	case strings.Contains(s, ","):
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil
}

// decimalFlexible: money from number or string, see parseAmount.
func decimalFlexible(m map[string]any, aliases map[string][]string, key string) *decimal.Decimal {
	for _, k := range aliases[key] {
		switch v := lookupAny(m, k).(type) {
		case float64:
			d := decimal.NewFromFloat(v)
			return &d
		case int:
			d := decimal.NewFromInt(int64(v))
			return &d
		case int64:
			d := decimal.NewFromInt(v)
			return &d
		case json.Number:
			if d, err := decimal.NewFromString(v.String()); err == nil {
				return &d
			}
		case string:
			if d, ok := parseAmount(v); ok {
				return &d
			}
		}
	}
	return nil
}

// firstInt64Flexible: int64 from several paths (float64/int/string).
func firstInt64Flexible(m map[string]any, paths ...string) *int64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			x := int64(v)
			return &x
		case int:
			x := int64(v)
			return &x
		case int64:
			x := v
			return &x
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return &n
			}
		}
	}
	return nil
}

func dateAlias(m map[string]any, aliases map[string][]string, key string) domain.Date {
	for _, p := range aliases[key] {
		s := lookupStr(m, p)
		if s == "" {
			continue
		}
		if d, err := domain.ParseDate(s); err == nil {
			return d
		}
	}
	return domain.Date{}
}

func timeAlias(m map[string]any, aliases map[string][]string, key string) time.Time {
	for _, p := range aliases[key] {
		s := lookupStr(m, p)
		if s == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

func boolAlias(m map[string]any, aliases map[string][]string, key string) *bool {
	for _, p := range aliases[key] {
		switch v := lookupAny(m, p).(type) {
		case bool:
			return &v
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return &b
			}
		}
	}
	return nil
}

/********** listing mapper **********/

var (
	errEmptyListing  = errors.New("empty listing payload")
	errNoNightlyRate = errors.New("listing has no parseable nightly rate")
)

// mapListing builds a Listing from the listing payload and, when present, its
// rates payload. A nil rates map means no override and no promotion. A payload
// without a usable nightly rate is refused.
func mapListing(p, rates map[string]any, defaultCurrency string) (domain.Listing, error) {
	if len(p) == 0 {
		return domain.Listing{}, errEmptyListing
	}
	nightly := decimalFlexible(p, listingAliases, "nightly")
	if nightly == nil || nightly.IsNegative() {
		return domain.Listing{}, errNoNightlyRate
	}

	id := int64(0)
	if v := firstInt64Flexible(p, listingAliases["id"]...); v != nil {
		id = *v
	}

	raw, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).
			Str("context", "mapListing").
			Msg("failed to marshal listing to JSON")
	}

	l := domain.Listing{
		ID:        id,
		HostID:    firstNonEmptyAlias(p, listingAliases, "host_id"),
		Title:     firstNonEmptyAlias(p, listingAliases, "title"),
		City:      firstNonEmptyAlias(p, listingAliases, "city"),
		Country:   firstNonEmptyAlias(p, listingAliases, "country"),
		Currency:  strings.ToUpper(deref(firstNonEmptyAlias(p, listingAliases, "currency"))),
		Promotion: domain.NoPromotion{},
		Active:    listingActive(p),
		RawJSON:   raw,
	}
	if l.Currency == "" {
		l.Currency = defaultCurrency
	}
	l.NightlyRate = *nightly

	// Some backends inline rates into the listing payload; the rates payload wins.
	for _, src := range []struct {
		m       map[string]any
		aliases map[string][]string
	}{{p, inlineRateAliases}, {rates, rateAliases}} {
		if src.m == nil {
			continue
		}
		if o := mapOverride(src.m, src.aliases); o != nil {
			l.Override = o
		}
		if promo := mapPromotion(src.m, src.aliases); promo.Kind() != domain.PromotionNone {
			l.Promotion = promo
		}
	}
	return l, nil
}

func listingActive(p map[string]any) bool {
	if b := boolAlias(p, listingAliases, "active"); b != nil {
		return *b
	}
	switch strings.ToLower(deref(firstNonEmptyAlias(p, listingAliases, "status"))) {
	case "", "active", "available", "published":
		return true
	}
	return false
}

func mapOverride(m map[string]any, aliases map[string][]string) *domain.RateOverride {
	amt := decimalFlexible(m, aliases, "override_amount")
	if amt == nil || amt.IsNegative() {
		return nil
	}
	return &domain.RateOverride{
		Amount:    *amt,
		ValidFrom: dateAlias(m, aliases, "override_from"),
		ValidTo:   dateAlias(m, aliases, "override_to"),
	}
}

func mapPromotion(m map[string]any, aliases map[string][]string) domain.Promotion {
	return domain.NewPromotion(
		decimalFlexible(m, aliases, "percent_off"),
		decimalFlexible(m, aliases, "amount_off"),
	)
}

/********** refund mapper **********/

func mapRefund(p map[string]any, defaultCurrency string) domain.RefundRequest {
	r := domain.RefundRequest{
		ID:              deref(firstNonEmptyAlias(p, refundAliases, "id")),
		BookingID:       deref(firstNonEmptyAlias(p, refundAliases, "booking_id")),
		UserID:          deref(firstNonEmptyAlias(p, refundAliases, "user_id")),
		Currency:        strings.ToUpper(deref(firstNonEmptyAlias(p, refundAliases, "currency"))),
		Reason:          deref(firstNonEmptyAlias(p, refundAliases, "reason")),
		RejectionReason: deref(firstNonEmptyAlias(p, refundAliases, "rejection_reason")),
		Status:          domain.ParseRefundStatus(deref(firstNonEmptyAlias(p, refundAliases, "status"))),
		CreatedAt:       timeAlias(p, refundAliases, "created_at"),
		UpdatedAt:       timeAlias(p, refundAliases, "updated_at"),
	}
	if r.Currency == "" {
		r.Currency = defaultCurrency
	}
	if v := decimalFlexible(p, refundAliases, "amount"); v != nil {
		r.Amount = *v
	}
	if v := firstInt64Flexible(p, refundAliases["resubmission_count"]...); v != nil {
		r.ResubmissionCount = int(*v)
	}
	return r
}

func mapRefunds(userID string, raw []map[string]any, defaultCurrency string) []domain.RefundRequest {
	out := make([]domain.RefundRequest, 0, len(raw))
	for _, p := range raw {
		r := mapRefund(p, defaultCurrency)
		if r.ID == "" {
			log.Warn().Str("context", "mapRefunds").Str("user_id", userID).Msg("skipping refund without id")
			continue
		}
		if r.UserID == "" {
			r.UserID = userID
		}
		out = append(out, r)
	}
	return out
}
