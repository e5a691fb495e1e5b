//go:build integration || !unit

package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"

	"condotel/internal/adapters/backend"
	"condotel/internal/adapters/events"
	server "condotel/internal/adapters/http_server"
	redisad "condotel/internal/adapters/redis"
	"condotel/internal/adapters/session"
	"condotel/internal/app"
	"condotel/internal/domain"
	mysqlrepo "condotel/internal/storage/mysql"
)

// ---------- helpers ----------

func migrationsDir() string {
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return v
	}
	return filepath.Join("..", "..", "migrations")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir()

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=condotel",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/condotel?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

// ---------- fake upstream backend ----------

type upstream struct {
	mu          sync.Mutex
	resubmitted []string
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/listings/9001", func(w http.ResponseWriter, r *http.Request) {
		writeUpstream(w, map[string]any{"data": map[string]any{
			"id": 9001, "name": "Sea View Condotel", "city": "Nha Trang",
			"country": "VN", "currency": "vnd", "price": "1000000", "status": "active",
		}})
	})
	mux.HandleFunc("/listings/9001/rates", func(w http.ResponseWriter, r *http.Request) {
		writeUpstream(w, map[string]any{
			"special_price": 800000, "valid_from": "2024-06-01", "valid_to": "2024-06-30",
			"percent_off": 10,
		})
	})
	mux.HandleFunc("/users/u-1/refunds", func(w http.ResponseWriter, r *http.Request) {
		writeUpstream(w, []map[string]any{
			{"id": "rf-1", "booking_id": "bk-1", "amount": "1500000", "status": "rejected",
				"rejection_reason": "missing receipt", "resubmission_count": 0},
		})
	})
	mux.HandleFunc("/refunds/rf-1/resubmit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		u.mu.Lock()
		u.resubmitted = append(u.resubmitted, "rf-1")
		u.mu.Unlock()
		writeUpstream(w, map[string]any{"id": "rf-1", "status": "pending", "resubmission_count": 1})
	})
	return mux
}

func writeUpstream(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ---------- the test ----------

func TestHTTP_EndToEnd_QuoteAndResubmit(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)

	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })

	up := &upstream{}
	upSrv := httptest.NewServer(up.handler())
	defer upSrv.Close()

	client, err := backend.New(upSrv.URL, "", 100)
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	verifier, err := session.NewVerifier("e2e-secret", "condotel")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	policy := domain.DefaultResubmissionPolicy
	q := app.NewQueryService(repo, repo, cache, time.Minute, policy).WithBackend(client, "VND")
	refunds := app.NewRefundService(client, repo, cache, events.NopPublisher{}, policy, "VND")
	syncer := app.NewSyncService(client, repo, repo, cache, events.NopPublisher{}, "VND")

	srv := server.New(zerolog.Nop(), verifier)
	srv.MountHandlers(&server.Handlers{Q: q, R: refunds, S: syncer})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	call := func(method, path string, user *domain.User, body string) (int, map[string]any) {
		t.Helper()
		req, err := http.NewRequestWithContext(context.Background(), method, ts.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		if user != nil {
			tok, err := verifier.Sign(*user, time.Hour)
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		defer res.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(res.Body).Decode(&out)
		return res.StatusCode, out
	}

	admin := &domain.User{ID: "ops-1", Role: domain.RoleAdmin}
	guest := &domain.User{ID: "u-1", Role: domain.RoleGuest}

	// listings
	if code, body := call(http.MethodPost, "/v1/admin/listings/9001/sync", admin, ""); code != http.StatusOK {
		t.Fatalf("sync listing: %d %v", code, body)
	}
	code, body := call(http.MethodGet, "/v1/listings/9001/quote?check_in=2024-06-02&check_out=2024-06-05", nil, "")
	if code != http.StatusOK {
		t.Fatalf("quote: %d %v", code, body)
	}
	if body["final_rate"] != "720000.00" || body["total"] != "2160000.00" || body["override_applied"] != true {
		t.Fatalf("unexpected quote: %v", body)
	}
	code, body = call(http.MethodGet, "/v1/listings/9001/quote?check_in=2024-07-02&check_out=2024-07-03", nil, "")
	if code != http.StatusOK || body["final_rate"] != "900000.00" {
		t.Fatalf("out-of-window quote: %d %v", code, body)
	}

	// refunds
	if code, body := call(http.MethodPost, "/v1/admin/users/u-1/refunds/sync", admin, ""); code != http.StatusOK {
		t.Fatalf("sync refunds: %d %v", code, body)
	}
	if code, _ := call(http.MethodGet, "/v1/refunds/rf-1", nil, ""); code != http.StatusUnauthorized {
		t.Fatalf("anonymous refund read: want 401, got %d", code)
	}
	code, body = call(http.MethodGet, "/v1/refunds/rf-1", guest, "")
	if code != http.StatusOK || body["can_resubmit"] != true || body["user_id"] != "u-1" {
		t.Fatalf("refund view: %d %v", code, body)
	}
	other := &domain.User{ID: "u-2", Role: domain.RoleGuest}
	if code, _ := call(http.MethodPost, "/v1/refunds/rf-1/resubmit", other, `{"reason":"mine now"}`); code != http.StatusForbidden {
		t.Fatalf("foreign resubmit: want 403, got %d", code)
	}

	code, body = call(http.MethodPost, "/v1/refunds/rf-1/resubmit", guest, `{"reason":"receipt attached"}`)
	if code != http.StatusOK {
		t.Fatalf("resubmit: %d %v", code, body)
	}
	if body["status"] != "Pending" || body["resubmission_count"] != float64(1) || body["can_resubmit"] != false {
		t.Fatalf("unexpected resubmit answer: %v", body)
	}
	if code, _ := call(http.MethodPost, "/v1/refunds/rf-1/resubmit", guest, `{"reason":"again"}`); code != http.StatusConflict {
		t.Fatalf("second resubmit: want 409, got %d", code)
	}
	if len(up.resubmitted) != 1 {
		t.Fatalf("backend resubmit calls = %d, want 1", len(up.resubmitted))
	}

	// persisted, and the cached view was invalidated
	stored, err := repo.GetRefund(context.Background(), "rf-1")
	if err != nil {
		t.Fatalf("GetRefund: %v", err)
	}
	if stored.Status != domain.RefundPending || stored.ResubmissionCount != 1 || stored.BookingID != "bk-1" {
		t.Fatalf("stored refund: %+v", stored)
	}
	code, body = call(http.MethodGet, "/v1/refunds/rf-1", guest, "")
	if code != http.StatusOK || body["status"] != "Pending" {
		t.Fatalf("refund after resubmit: %d %v", code, body)
	}
}
