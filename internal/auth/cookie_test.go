package auth

import (
	"testing"
	"time"
)

func TestCookieCodecRoundTrip(t *testing.T) {
	codec, err := NewCookieCodec([]byte("test-secret"))
	if err != nil {
		t.Fatalf("NewCookieCodec: %v", err)
	}

	want := Claims{Username: "alice", PasswordHash: "bcrypt:xyz", Timestamp: time.Now().Truncate(time.Second)}
	token, err := codec.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Username != want.Username || got.PasswordHash != want.PasswordHash || !got.Timestamp.Equal(want.Timestamp) {
		t.Fatalf("Decode = %+v, want %+v", got, want)
	}
}

func TestCookieCodecRejectsTamperedToken(t *testing.T) {
	codec, _ := NewCookieCodec([]byte("test-secret"))
	token, _ := codec.Encode(Claims{Username: "alice"})

	tampered := token[:len(token)-1] + "x"
	if _, err := codec.Decode(tampered); err == nil {
		t.Fatalf("expected a tampered token to be rejected")
	}
}

func TestCookieCodecRejectsWrongSecret(t *testing.T) {
	codecA, _ := NewCookieCodec([]byte("secret-a"))
	codecB, _ := NewCookieCodec([]byte("secret-b"))

	token, _ := codecA.Encode(Claims{Username: "alice"})
	if _, err := codecB.Decode(token); err == nil {
		t.Fatalf("expected a token signed with a different secret to be rejected")
	}
}

func TestNewCookieCodecRejectsEmptySecret(t *testing.T) {
	if _, err := NewCookieCodec(nil); err == nil {
		t.Fatalf("expected an empty secret to be rejected")
	}
}
