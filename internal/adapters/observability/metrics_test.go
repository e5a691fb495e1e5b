package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"condotel/internal/adapters/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record one sample per family so they show up in the exposition
	observability.ObserveHTTP("/v1/listings/{id}/quote", "GET", 200, 12*time.Millisecond)
	observability.ObserveQuote(true, "percent_off")
	observability.ObserveRefundGate(false)
	observability.ObserveSync("listing", "ok")
	observability.ObserveSyncError("refunds", io.ErrUnexpectedEOF)

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, name := range []string{
		"condotel_http_requests_total",
		`condotel_quotes_total{override="true",promotion="percent_off"}`,
		`condotel_refund_gate_total{decision="refused"}`,
		`condotel_sync_events_total{kind="listing",outcome="ok"}`,
		`condotel_sync_events_total{kind="refunds",outcome="error"}`,
		`condotel_sync_errors_total{error="*errors.errorString",kind="refunds"}`,
	} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
}

func TestLabelErr(t *testing.T) {
	if got := observability.LabelErr(nil); got != "none" {
		t.Fatalf("nil: got %q", got)
	}
	if got := observability.LabelErr(io.EOF); got != "*errors.errorString" {
		t.Fatalf("EOF: got %q", got)
	}
}
