package auth

import (
	"context"
	"testing"
	"time"

	"github.com/itskum47/judgeforge/internal/model"
)

func newTestContest() *model.Contest {
	return &model.Contest{
		ID:                          1,
		AllowPasswordAuthentication: true,
		CookieDuration:              time.Hour,
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return h
}

func TestSessionAuthenticateSuccess(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()
	store.PutUser(&model.User{ID: 1, Username: "alice", PasswordHash: mustHash(t, "s3cret")})
	store.PutParticipation(&model.Participation{ID: 10, UserID: 1, ContestID: 1})

	codec, _ := NewCookieCodec([]byte("secret"))
	svc := NewSessionService(store, codec)

	contest := newTestContest()
	token, p, err := svc.Authenticate(ctx, contest, "alice", "s3cret", "203.0.113.5")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.ID != 10 {
		t.Fatalf("participation ID = %d, want 10", p.ID)
	}
	if token == "" {
		t.Fatalf("expected a non-empty cookie")
	}
}

func TestSessionAuthenticateWrongPassword(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()
	store.PutUser(&model.User{ID: 1, Username: "alice", PasswordHash: mustHash(t, "s3cret")})
	store.PutParticipation(&model.Participation{ID: 10, UserID: 1, ContestID: 1})

	codec, _ := NewCookieCodec([]byte("secret"))
	svc := NewSessionService(store, codec)

	if _, _, err := svc.Authenticate(ctx, newTestContest(), "alice", "wrong", "203.0.113.5"); err != ErrWrongPassword {
		t.Fatalf("Authenticate error = %v, want ErrWrongPassword", err)
	}
}

func TestSessionAuthenticateDisabled(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()
	codec, _ := NewCookieCodec([]byte("secret"))
	svc := NewSessionService(store, codec)

	contest := newTestContest()
	contest.AllowPasswordAuthentication = false
	if _, _, err := svc.Authenticate(ctx, contest, "alice", "s3cret", "203.0.113.5"); err != ErrPasswordAuthDisabled {
		t.Fatalf("Authenticate error = %v, want ErrPasswordAuthDisabled", err)
	}
}

func TestSessionAuthenticateRejectsForbiddenIP(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()
	store.PutUser(&model.User{ID: 1, Username: "alice", PasswordHash: mustHash(t, "s3cret")})
	store.PutParticipation(&model.Participation{ID: 10, UserID: 1, ContestID: 1, IPAllowList: []string{"10.0.0.1"}})

	codec, _ := NewCookieCodec([]byte("secret"))
	svc := NewSessionService(store, codec)

	contest := newTestContest()
	contest.IPRestriction = true
	if _, _, err := svc.Authenticate(ctx, contest, "alice", "s3cret", "203.0.113.5"); err != ErrForbiddenIP {
		t.Fatalf("Authenticate error = %v, want ErrForbiddenIP", err)
	}

	if _, _, err := svc.Authenticate(ctx, contest, "alice", "s3cret", "10.0.0.1"); err != nil {
		t.Fatalf("Authenticate from allowed IP: %v", err)
	}
}

func TestSessionAuthenticateRejectsHiddenWhenBlocked(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()
	store.PutUser(&model.User{ID: 1, Username: "alice", PasswordHash: mustHash(t, "s3cret")})
	store.PutParticipation(&model.Participation{ID: 10, UserID: 1, ContestID: 1, Hidden: true})

	codec, _ := NewCookieCodec([]byte("secret"))
	svc := NewSessionService(store, codec)

	contest := newTestContest()
	contest.BlockHiddenParticipations = true
	if _, _, err := svc.Authenticate(ctx, contest, "alice", "s3cret", "203.0.113.5"); err != ErrHiddenBlocked {
		t.Fatalf("Authenticate error = %v, want ErrHiddenBlocked", err)
	}
}

func TestSessionAuthenticateIPUnique(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()
	store.PutUser(&model.User{ID: 1, Username: "alice"})
	store.PutUser(&model.User{ID: 2, Username: "bob"})
	store.PutParticipation(&model.Participation{ID: 10, UserID: 1, ContestID: 1, IPAllowList: []string{"10.0.0.1/32"}})
	store.PutParticipation(&model.Participation{ID: 11, UserID: 2, ContestID: 1, IPAllowList: []string{"10.0.0.2"}})

	codec, _ := NewCookieCodec([]byte("secret"))
	svc := NewSessionService(store, codec)

	contest := newTestContest()
	contest.IPAutologin = true

	p, err := svc.AuthenticateIP(ctx, contest, "10.0.0.1")
	if err != nil {
		t.Fatalf("AuthenticateIP: %v", err)
	}
	if p == nil || p.ID != 10 {
		t.Fatalf("AuthenticateIP participation = %+v, want ID 10", p)
	}

	if p, err := svc.AuthenticateIP(ctx, contest, "203.0.113.9"); err != nil || p != nil {
		t.Fatalf("AuthenticateIP(no match) = (%+v, %v), want (nil, nil)", p, err)
	}
}

func TestSessionAuthenticateIPAmbiguous(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()
	store.PutUser(&model.User{ID: 1, Username: "alice"})
	store.PutUser(&model.User{ID: 2, Username: "bob"})
	store.PutParticipation(&model.Participation{ID: 10, UserID: 1, ContestID: 1, IPAllowList: []string{"10.0.0.1"}})
	store.PutParticipation(&model.Participation{ID: 11, UserID: 2, ContestID: 1, IPAllowList: []string{"10.0.0.1"}})

	codec, _ := NewCookieCodec([]byte("secret"))
	svc := NewSessionService(store, codec)

	contest := newTestContest()
	contest.IPAutologin = true
	if _, err := svc.AuthenticateIP(ctx, contest, "10.0.0.1"); err != ErrAmbiguousIP {
		t.Fatalf("AuthenticateIP error = %v, want ErrAmbiguousIP", err)
	}
}

func TestSessionValidateRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()
	store.PutUser(&model.User{ID: 1, Username: "alice", PasswordHash: mustHash(t, "s3cret")})
	store.PutParticipation(&model.Participation{ID: 10, UserID: 1, ContestID: 1})

	codec, _ := NewCookieCodec([]byte("secret"))
	svc := NewSessionService(store, codec)
	contest := newTestContest()

	token, _, err := svc.Authenticate(ctx, contest, "alice", "s3cret", "203.0.113.5")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	p, refreshed, err := svc.Validate(ctx, contest, token, "203.0.113.5")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.ID != 10 {
		t.Fatalf("participation ID = %d, want 10", p.ID)
	}
	if refreshed == "" {
		t.Fatalf("expected a refreshed cookie")
	}

	contest.CookieDuration = -time.Second // forces any cookie to read as expired
	if _, _, err := svc.Validate(ctx, contest, token, "203.0.113.5"); err != ErrCookieExpired {
		t.Fatalf("Validate error = %v, want ErrCookieExpired", err)
	}
}

func TestSessionValidateDetectsPasswordRotation(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()
	store.PutUser(&model.User{ID: 1, Username: "alice", PasswordHash: mustHash(t, "s3cret")})
	store.PutParticipation(&model.Participation{ID: 10, UserID: 1, ContestID: 1})

	codec, _ := NewCookieCodec([]byte("secret"))
	svc := NewSessionService(store, codec)
	contest := newTestContest()

	token, _, err := svc.Authenticate(ctx, contest, "alice", "s3cret", "203.0.113.5")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	store.PutUser(&model.User{ID: 1, Username: "alice", PasswordHash: mustHash(t, "newpass")})
	if _, _, err := svc.Validate(ctx, contest, token, "203.0.113.5"); err != ErrWrongPassword {
		t.Fatalf("Validate error = %v, want ErrWrongPassword after rotation", err)
	}
}

func TestImpersonationBypassesIPRestriction(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()
	store.PutUser(&model.User{ID: 1, Username: "alice"})
	store.PutParticipation(&model.Participation{ID: 10, UserID: 1, ContestID: 1, IPAllowList: []string{"10.0.0.1"}})

	codec, _ := NewCookieCodec([]byte("secret"))
	svc := NewSessionService(store, codec)

	contest := newTestContest()
	contest.IPRestriction = true

	adminToken, err := IssueImpersonationToken(codec, contest.ID, "alice")
	if err != nil {
		t.Fatalf("IssueImpersonationToken: %v", err)
	}

	cookie, p, err := svc.Impersonate(ctx, contest, adminToken)
	if err != nil {
		t.Fatalf("Impersonate: %v", err)
	}
	if p.ID != 10 {
		t.Fatalf("participation ID = %d, want 10", p.ID)
	}

	// Validate from an IP not on the allow-list: must still succeed since
	// the cookie is marked impersonated.
	if _, _, err := svc.Validate(ctx, contest, cookie, "198.51.100.7"); err != nil {
		t.Fatalf("Validate(impersonated, forbidden IP): %v", err)
	}
}
