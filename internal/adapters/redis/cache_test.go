package redisad_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	redisad "condotel/internal/adapters/redis"
	"condotel/internal/domain"
)

func newCache(t *testing.T) (*redisad.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestCache_SetGetDel(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	var got domain.RefundRequest
	ok, err := c.Get(ctx, "refund:rf-1", &got)
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	in := domain.RefundRequest{ID: "rf-1", Status: domain.RefundRejected}
	if err := c.Set(ctx, "refund:rf-1", in, 60); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("refund:rf-1"); ttl.Seconds() != 60 {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	ok, err = c.Get(ctx, "refund:rf-1", &got)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.ID != "rf-1" || got.Status != domain.RefundRejected {
		t.Fatalf("unexpected value: %+v", got)
	}

	if err := c.Del(ctx, "refund:rf-1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if mr.Exists("refund:rf-1") {
		t.Fatalf("key still present after Del")
	}
}

func TestCache_DelPrefix(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	for _, k := range []string{"quote:7:2024-06-10:2024-06-15", "quote:7:-:-", "quote:70:-:-", "listing:7"} {
		if err := c.Set(ctx, k, map[string]int{"v": 1}, 60); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	if err := c.DelPrefix(ctx, "quote:7:"); err != nil {
		t.Fatalf("DelPrefix: %v", err)
	}
	if mr.Exists("quote:7:-:-") || mr.Exists("quote:7:2024-06-10:2024-06-15") {
		t.Fatalf("prefixed keys survived")
	}
	if !mr.Exists("quote:70:-:-") || !mr.Exists("listing:7") {
		t.Fatalf("unrelated keys were removed")
	}
}

func TestCache_UndecodableEntryIsAMiss(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	if err := mr.Set("refund:rf-9", `{"id":"rf-9","status":`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var got domain.RefundRequest
	ok, err := c.Get(ctx, "refund:rf-9", &got)
	if ok {
		t.Fatalf("a corrupt entry must not be served as a hit: %+v", got)
	}
	if err == nil {
		t.Fatalf("expected the decode error to be reported")
	}
}
