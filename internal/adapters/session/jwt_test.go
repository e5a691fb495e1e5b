package session_test

import (
	"errors"
	"testing"
	"time"

	"condotel/internal/adapters/session"
	"condotel/internal/domain"
)

func TestVerifier_SignVerify(t *testing.T) {
	v, err := session.NewVerifier("s3cret", "condotel")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	tok, err := v.Sign(domain.User{ID: "u-1", Email: "a@b.c", Role: domain.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	s, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !s.IsAuthenticated || !s.IsAdmin || s.User.ID != "u-1" || s.User.Email != "a@b.c" {
		t.Fatalf("unexpected session: %+v", s)
	}

	guest, _ := v.Sign(domain.User{ID: "u-2"}, time.Hour)
	s, err = v.Verify(guest)
	if err != nil {
		t.Fatalf("Verify guest: %v", err)
	}
	if s.IsAdmin || s.User.Role != domain.RoleGuest {
		t.Fatalf("role should default to guest: %+v", s)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v, _ := session.NewVerifier("s3cret", "condotel")
	other, _ := session.NewVerifier("another", "condotel")
	wrongIssuer, _ := session.NewVerifier("s3cret", "someone-else")

	foreign, _ := other.Sign(domain.User{ID: "u-1"}, time.Hour)
	expired, _ := v.Sign(domain.User{ID: "u-1"}, -time.Hour)
	misissued, _ := wrongIssuer.Sign(domain.User{ID: "u-1"}, time.Hour)

	for name, tok := range map[string]string{
		"bad signature": foreign,
		"expired":       expired,
		"wrong issuer":  misissued,
		"garbage":       "not.a.jwt",
	} {
		s, err := v.Verify(tok)
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
		if s.IsAuthenticated {
			t.Fatalf("%s: session must be anonymous", name)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for in, want := range cases {
		if got := session.BearerToken(in); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}
