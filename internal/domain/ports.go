package domain

import "context"

type ListingRepository interface {
	// Write paths
	UpsertListing(ctx context.Context, l Listing) error
	LogMiss(ctx context.Context, kind string, id string, status int, reason string) error

	// Read paths
	GetListing(ctx context.Context, id int64) (Listing, error)
	ListListings(ctx context.Context, q ListingsQuery) (ListingsPage, error)
}

type RefundRepository interface {
	UpsertRefunds(ctx context.Context, rs []RefundRequest) error
	GetRefund(ctx context.Context, id string) (RefundRequest, error)
	ListRefunds(ctx context.Context, q RefundsQuery) ([]RefundRequest, error)
}

// BackendClient talks to the remote booking REST API. Payloads are returned
// raw and mapped in the app layer.
type BackendClient interface {
	ListListingIDs(ctx context.Context, page, size int) ([]int64, error)
	GetListing(ctx context.Context, id int64) (map[string]any, error)
	GetListingRates(ctx context.Context, id int64) (map[string]any, error)
	ListRefunds(ctx context.Context, userID string) ([]map[string]any, error)
	GetRefund(ctx context.Context, id string) (map[string]any, error)
	ResubmitRefund(ctx context.Context, id string, reason string) (map[string]any, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
	DelPrefix(ctx context.Context, prefix string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// Read models & queries

type ListingsQuery struct {
	City   *string
	Limit  int
	Cursor *int64 // listings with id > Cursor
}

type ListingsPage struct {
	Items      []Listing `json:"items"`
	NextCursor *int64    `json:"next_cursor,omitempty"`
}

type RefundsQuery struct {
	UserID *string
	Status *RefundStatus
	Limit  int
}

// Event types handed to EventPublisher.
const (
	EventRefundResubmitted = "refund.resubmitted"
	EventListingSynced     = "listing.synced"
)
