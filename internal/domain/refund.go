package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "Pending"
	RefundCompleted RefundStatus = "Completed"
	RefundRefunded  RefundStatus = "Refunded"
	RefundRejected  RefundStatus = "Rejected"
	RefundAppealed  RefundStatus = "Appealed"

	RefundStatusUnknown RefundStatus = ""
)

var refundStatuses = []RefundStatus{RefundPending, RefundCompleted, RefundRefunded, RefundRejected, RefundAppealed}

// ParseRefundStatus matches case-insensitively; anything else is RefundStatusUnknown.
func ParseRefundStatus(s string) RefundStatus {
	s = strings.TrimSpace(s)
	for _, st := range refundStatuses {
		if strings.EqualFold(s, string(st)) {
			return st
		}
	}
	return RefundStatusUnknown
}

type RefundRequest struct {
	ID                string          `json:"id"`
	BookingID         string          `json:"booking_id"`
	UserID            string          `json:"user_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Reason            string          `json:"reason,omitempty"`
	RejectionReason   string          `json:"rejection_reason,omitempty"`
	Status            RefundStatus    `json:"status"`
	ResubmissionCount int             `json:"resubmission_count"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ResubmissionPolicy caps how many times a rejected refund may be filed again.
type ResubmissionPolicy struct {
	MaxResubmissions int
}

var DefaultResubmissionPolicy = ResubmissionPolicy{MaxResubmissions: 1}

// Allows is a UX gate only; the backend re-checks the same rule.
func (p ResubmissionPolicy) Allows(r RefundRequest) bool {
	return r.Status == RefundRejected &&
		r.ResubmissionCount >= 0 &&
		r.ResubmissionCount < p.MaxResubmissions
}

// CanResubmit applies DefaultResubmissionPolicy.
func CanResubmit(r RefundRequest) bool {
	return DefaultResubmissionPolicy.Allows(r)
}
