package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// password hashes are stored as "method:payload", matching the format CMS
// persists in the User table. Only the two methods CMS supports are known
// here; anything else is a configuration error.
const (
	methodBcrypt    = "bcrypt"
	methodPlaintext = "plaintext"
)

// HashPassword builds a stored password hash for the given plaintext.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return methodBcrypt + ":" + string(hashed), nil
}

// ValidatePassword checks candidate against a stored "method:payload" hash.
func ValidatePassword(stored, candidate string) (bool, error) {
	method, payload, ok := strings.Cut(stored, ":")
	if !ok {
		return false, fmt.Errorf("auth: malformed stored password hash")
	}
	switch method {
	case methodBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(payload), []byte(candidate))
		return err == nil, nil
	case methodPlaintext:
		equal := subtle.ConstantTimeCompare([]byte(payload), []byte(candidate)) == 1
		return equal, nil
	default:
		return false, fmt.Errorf("auth: unknown password hash method %q", method)
	}
}
