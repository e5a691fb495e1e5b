package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"condotel/internal/adapters/backend"
	"condotel/internal/domain"
)

func newClient(t *testing.T, url string) *backend.Client {
	t.Helper()
	cl, err := backend.New(url, "test-key", 100) // high RPS for tests
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	return cl
}

func TestClient_GetListing_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			w.WriteHeader(500)
		default:
			w.WriteHeader(200)
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 123.0}})
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := newClient(t, ts.URL).GetListing(ctx, 123)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	id, ok := got["id"].(float64)
	if !ok || int(id) != 123 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_GetListing_FallsBackToLegacyRoute(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/condotel/9", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"condotelId": 9.0, "pricePerNight": 500000.0})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	got, err := newClient(t, ts.URL).GetListing(context.Background(), 9)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got["pricePerNight"] != 500000.0 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestClient_GetListing_404(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := newClient(t, ts.URL).GetListing(ctx, 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected domain.ErrNotFound, got %v", err)
	}
}

func TestClient_ListListingIDs_Envelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/listings" || r.URL.Query().Get("page") != "2" || r.URL.Query().Get("pageSize") != "3" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []any{
				map[string]any{"id": 1.0},
				map[string]any{"id": "2"},
				map[string]any{"name": "no id"},
				3.0,
			},
		})
	}))
	defer ts.Close()

	ids, err := newClient(t, ts.URL).ListListingIDs(context.Background(), 2, 3)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestClient_ResubmitRefund_NotRetriedOn5xx(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := newClient(t, ts.URL).ResubmitRefund(context.Background(), "rf-1", "new evidence")
	if err == nil {
		t.Fatalf("expected error")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("POST must not be retried on 5xx, got %d calls", n)
	}
}

func TestClient_ResubmitRefund_ConflictIsNotEligible(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/refunds/rf-1/resubmit" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["reason"] != "new evidence" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("already resubmitted"))
	}))
	defer ts.Close()

	_, err := newClient(t, ts.URL).ResubmitRefund(context.Background(), "rf-1", "new evidence")
	if !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("expected domain.ErrNotEligible, got %v", err)
	}
}

func TestClient_ListRefunds(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/u-1/refunds" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode([]any{
			map[string]any{"id": "rf-1", "status": "Rejected"},
			map[string]any{"id": "rf-2", "status": "Pending"},
		})
	}))
	defer ts.Close()

	out, err := newClient(t, ts.URL).ListRefunds(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(out) != 2 || out[0]["id"] != "rf-1" {
		t.Fatalf("unexpected refunds: %+v", out)
	}
}
