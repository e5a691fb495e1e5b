package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"condotel/internal/app"
	"condotel/internal/domain"
)

type Queries interface {
	GetListing(ctx context.Context, id int64) (domain.Listing, error)
	ListListings(ctx context.Context, q domain.ListingsQuery) (domain.ListingsPage, error)
	Quote(ctx context.Context, id int64, stay *domain.StayWindow) (domain.Quote, error)
	GetRefund(ctx context.Context, id string) (app.RefundView, error)
	ListRefunds(ctx context.Context, q domain.RefundsQuery) ([]app.RefundView, error)
}

type Refunds interface {
	Resubmit(ctx context.Context, id, reason string) (domain.RefundRequest, error)
	Policy() domain.ResubmissionPolicy
}

type Syncer interface {
	SyncListing(ctx context.Context, id int64) error
	SyncRefunds(ctx context.Context, userID string) (int, error)
}

type Handlers struct {
	Q Queries
	R Refunds
	S Syncer
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/listings", h.listListings)
		r.Get("/listings/{id}", h.getListing)
		r.Get("/listings/{id}/quote", h.quote)

		r.Get("/refunds", h.listRefunds)
		r.Get("/refunds/{id}", h.getRefund)
		r.Post("/refunds/{id}/resubmit", h.resubmit)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/listings/{id}/sync", h.syncListing)
			r.Post("/users/{userID}/refunds/sync", h.syncRefunds)
		})
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := domain.SessionFrom(r.Context())
		switch {
		case !sess.IsAuthenticated:
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "a bearer token is required")
		case !sess.IsAdmin:
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "a valid bearer token is required")
	case errors.Is(err, domain.ErrForbidden):
		writeProblem(w, http.StatusForbidden, "Forbidden", "not allowed for this user")
	case errors.Is(err, domain.ErrNotEligible):
		writeProblem(w, http.StatusConflict, "Not Eligible", err.Error())
	case errors.Is(err, domain.ErrInvalidStay):
		writeProblem(w, http.StatusBadRequest, "Invalid Stay", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, http.StatusGatewayTimeout, "Timeout", "upstream did not answer in time")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCacheable answers 304 when the client already holds this version.
func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	writeBody(w, r, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBody(w, r, status, body)
}

func writeBody(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to write response body")
	}
}

func listingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return 0, false
	}
	return id, true
}

func intParam(r *http.Request, name string, def, max int) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > max {
		return 0, false
	}
	return n, true
}

/********** listings **********/

func (h *Handlers) listListings(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r, "limit", 20, 100)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 100")
		return
	}
	q := domain.ListingsQuery{Limit: limit}
	if city := strings.TrimSpace(r.URL.Query().Get("city")); city != "" {
		q.City = &city
	}
	if c := r.URL.Query().Get("cursor"); c != "" {
		cur, err := strconv.ParseInt(c, 10, 64)
		if err != nil || cur < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid cursor", "cursor must be a listing id")
			return
		}
		q.Cursor = &cur
	}

	page, err := h.Q.ListListings(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := listingsPageDTO{Items: make([]listingDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, l := range page.Items {
		out.Items = append(out.Items, toListingDTO(l))
	}
	writeCacheable(w, r, out)
}

func (h *Handlers) getListing(w http.ResponseWriter, r *http.Request) {
	id, ok := listingID(w, r)
	if !ok {
		return
	}
	l, err := h.Q.GetListing(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, toListingDTO(l))
}

// parseStay reads check_in/check_out. Both absent is a display quote (nil stay);
// exactly one present is a client error.
func parseStay(r *http.Request) (*domain.StayWindow, error) {
	in := strings.TrimSpace(r.URL.Query().Get("check_in"))
	out := strings.TrimSpace(r.URL.Query().Get("check_out"))
	if in == "" && out == "" {
		return nil, nil
	}
	if in == "" || out == "" {
		return nil, errors.New("check_in and check_out must be given together")
	}
	ci, err := domain.ParseDate(in)
	if err != nil {
		return nil, errors.New("check_in must be YYYY-MM-DD")
	}
	co, err := domain.ParseDate(out)
	if err != nil {
		return nil, errors.New("check_out must be YYYY-MM-DD")
	}
	return &domain.StayWindow{CheckIn: ci, CheckOut: co}, nil
}

func (h *Handlers) quote(w http.ResponseWriter, r *http.Request) {
	id, ok := listingID(w, r)
	if !ok {
		return
	}
	stay, err := parseStay(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Stay", err.Error())
		return
	}
	q, err := h.Q.Quote(r.Context(), id, stay)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, toQuoteDTO(q))
}

/********** refunds **********/

func (h *Handlers) listRefunds(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r, "limit", 50, 200)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
		return
	}
	q := domain.RefundsQuery{Limit: limit}
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.ParseRefundStatus(s)
		if st == domain.RefundStatusUnknown {
			writeProblem(w, http.StatusBadRequest, "Invalid status", "unknown refund status "+strconv.Quote(s))
			return
		}
		q.Status = &st
	}
	if u := strings.TrimSpace(r.URL.Query().Get("user_id")); u != "" {
		q.UserID = &u
	}

	views, err := h.Q.ListRefunds(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]refundDTO, 0, len(views))
	for _, v := range views {
		out = append(out, toRefundDTO(v))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": out})
}

func (h *Handlers) getRefund(w http.ResponseWriter, r *http.Request) {
	v, err := h.Q.GetRefund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toRefundDTO(v))
}

type resubmitRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) resubmit(w http.ResponseWriter, r *http.Request) {
	var body resubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected {\"reason\": \"...\"}")
		return
	}

	rf, err := h.R.Resubmit(r.Context(), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("refund_id", rf.ID).Int("resubmission_count", rf.ResubmissionCount).Msg("refund resubmitted")
	writeJSON(w, r, http.StatusOK, toRefundDTO(app.RefundView{
		RefundRequest: rf,
		CanResubmit:   h.R.Policy().Allows(rf),
	}))
}

/********** admin **********/

func (h *Handlers) syncListing(w http.ResponseWriter, r *http.Request) {
	id, ok := listingID(w, r)
	if !ok {
		return
	}
	if err := h.S.SyncListing(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.Q.GetListing(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toListingDTO(l))
}

func (h *Handlers) syncRefunds(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	n, err := h.S.SyncRefunds(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"user_id": userID, "synced": n})
}
