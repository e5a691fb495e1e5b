package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"condotel/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func valNonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func valDate(d domain.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.Time()
}

func valTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Repo stores listings, refund requests and sync misses. It implements both
// domain.ListingRepository and domain.RefundRepository.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertListing(ctx context.Context, l domain.Listing) error {
	var overrideAmount, overrideFrom, overrideTo any
	if o := l.Override; o != nil {
		overrideAmount = o.Amount
		overrideFrom = valDate(o.ValidFrom)
		overrideTo = valDate(o.ValidTo)
	}
	promo := l.Promotion
	if promo == nil {
		promo = domain.NoPromotion{}
	}
	_, err := r.db.ExecContext(ctx, upsertListingSQL,
		l.ID,
		valStr(l.HostID),
		valStr(l.Title),
		valStr(l.City),
		valStr(l.Country),
		l.Currency,
		l.NightlyRate,
		overrideAmount,
		overrideFrom,
		overrideTo,
		string(promo.Kind()),
		promo.Value(),
		l.Active,
		valJSON(l.RawJSON),
	)
	return err
}

func (r *Repo) LogMiss(ctx context.Context, kind, id string, status int, reason string) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, kind, id, status, reason)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (domain.Listing, error) {
	var (
		l                        domain.Listing
		hostID, title            sql.NullString
		city, country            sql.NullString
		overrideAmount           decimal.NullDecimal
		overrideFrom, overrideTo sql.NullTime
		promoKind                string
		promoValue               decimal.Decimal
	)
	if err := row.Scan(
		&l.ID,
		&hostID, &title, &city, &country,
		&l.Currency,
		&l.NightlyRate,
		&overrideAmount, &overrideFrom, &overrideTo,
		&promoKind, &promoValue,
		&l.Active,
		&l.UpdatedAt,
	); err != nil {
		return domain.Listing{}, err
	}
	l.HostID = strPtr(hostID)
	l.Title = strPtr(title)
	l.City = strPtr(city)
	l.Country = strPtr(country)
	if overrideAmount.Valid {
		o := &domain.RateOverride{Amount: overrideAmount.Decimal}
		if overrideFrom.Valid {
			o.ValidFrom = domain.DateOf(overrideFrom.Time)
		}
		if overrideTo.Valid {
			o.ValidTo = domain.DateOf(overrideTo.Time)
		}
		l.Override = o
	}
	l.Promotion = domain.PromotionOf(domain.PromotionKind(promoKind), promoValue)
	return l, nil
}

func (r *Repo) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	l, err := scanListing(r.db.QueryRowContext(ctx, getListingSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, err
}

func (r *Repo) ListListings(ctx context.Context, q domain.ListingsQuery) (domain.ListingsPage, error) {
	var city any
	if q.City != nil && strings.TrimSpace(*q.City) != "" {
		city = strings.TrimSpace(*q.City)
	}
	after := int64(0)
	if q.Cursor != nil {
		after = *q.Cursor
	}

	// Fetch one extra row to know whether another page exists.
	rows, err := r.db.QueryContext(ctx, listListingsSQL, city, city, after, q.Limit+1)
	if err != nil {
		return domain.ListingsPage{}, err
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return domain.ListingsPage{}, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return domain.ListingsPage{}, err
	}

	page := domain.ListingsPage{Items: out}
	if q.Limit > 0 && len(out) > q.Limit {
		page.Items = out[:q.Limit]
		next := page.Items[q.Limit-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

func (r *Repo) UpsertRefunds(ctx context.Context, rs []domain.RefundRequest) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*11)
	for _, rf := range rs {
		values = append(values, "(?,?,?,?,?,?,?,?,?,?,?)")
		args = append(args,
			rf.ID,
			valNonEmpty(rf.BookingID),
			rf.UserID,
			rf.Amount,
			rf.Currency,
			valNonEmpty(rf.Reason),
			valNonEmpty(rf.RejectionReason),
			string(rf.Status),
			rf.ResubmissionCount,
			valTime(rf.CreatedAt),
			valTime(rf.UpdatedAt),
		)
	}
	sqlStr := insertRefundsPrefix + strings.Join(values, ",") + insertRefundsOnDup
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func scanRefund(row rowScanner) (domain.RefundRequest, error) {
	var (
		rf                   domain.RefundRequest
		bookingID            sql.NullString
		reason, rejection    sql.NullString
		status               string
		createdAt, updatedAt sql.NullTime
	)
	if err := row.Scan(
		&rf.ID,
		&bookingID,
		&rf.UserID,
		&rf.Amount,
		&rf.Currency,
		&reason, &rejection,
		&status,
		&rf.ResubmissionCount,
		&createdAt, &updatedAt,
	); err != nil {
		return domain.RefundRequest{}, err
	}
	rf.BookingID = bookingID.String
	rf.Reason = reason.String
	rf.RejectionReason = rejection.String
	rf.Status = domain.ParseRefundStatus(status)
	if createdAt.Valid {
		rf.CreatedAt = createdAt.Time.UTC()
	}
	if updatedAt.Valid {
		rf.UpdatedAt = updatedAt.Time.UTC()
	}
	return rf, nil
}

func (r *Repo) GetRefund(ctx context.Context, id string) (domain.RefundRequest, error) {
	rf, err := scanRefund(r.db.QueryRowContext(ctx, getRefundSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RefundRequest{}, domain.ErrNotFound
	}
	return rf, err
}

func (r *Repo) ListRefunds(ctx context.Context, q domain.RefundsQuery) ([]domain.RefundRequest, error) {
	var user, status any
	if q.UserID != nil {
		user = *q.UserID
	}
	if q.Status != nil && *q.Status != domain.RefundStatusUnknown {
		status = string(*q.Status)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, listRefundsSQL, user, user, status, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RefundRequest
	for rows.Next() {
		rf, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rf)
	}
	return out, rows.Err()
}
