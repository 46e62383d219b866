// Package auth implements §4.7's contestant session cookie and admin
// impersonation token, grounded on the teacher's control_plane/auth/jwt.go
// HMAC-signed token pattern generalized to the cookie payload CMS's own
// authentication.py persists: (username, stored password hash, timestamp,
// impersonated flag).
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Claims is the payload an opaque session cookie carries. The password hash
// (not the plaintext) is stored so that revalidating a cookie never needs to
// re-run bcrypt, matching the original's stated rationale.
type Claims struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Timestamp    time.Time `json:"timestamp"`
	Impersonated bool      `json:"impersonated"`
}

var ErrInvalidCookie = errors.New("auth: invalid cookie")

// CookieCodec signs and verifies session cookies with a shared secret. The
// secret is a per-deployment configuration value (§7: "cookie secret absent"
// is a fatal configuration error at service startup).
type CookieCodec struct {
	secret []byte
}

// NewCookieCodec builds a codec from a non-empty secret.
func NewCookieCodec(secret []byte) (*CookieCodec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("auth: cookie secret must not be empty")
	}
	return &CookieCodec{secret: secret}, nil
}

// Encode signs claims into an opaque token of the form "<payload>.<sig>".
func (c *CookieCodec) Encode(claims Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("auth: marshaling cookie claims: %w", err)
	}
	encoded := base64URLEncode(payload)
	sig := computeHMAC(encoded, c.secret)
	return encoded + "." + sig, nil
}

// Decode verifies the signature and returns the embedded claims. It does not
// check expiry or re-validate against the store; callers do that (Validate).
func (c *CookieCodec) Decode(token string) (Claims, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Claims{}, ErrInvalidCookie
	}
	if !hmac.Equal([]byte(computeHMAC(encoded, c.secret)), []byte(sig)) {
		return Claims{}, ErrInvalidCookie
	}
	payload, err := base64URLDecode(encoded)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	return claims, nil
}

func computeHMAC(message string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(message))
	return base64URLEncode(h.Sum(nil))
}

func base64URLEncode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func base64URLDecode(data string) ([]byte, error) {
	if l := len(data) % 4; l > 0 {
		data += strings.Repeat("=", 4-l)
	}
	return base64.URLEncoding.DecodeString(data)
}
