package auth

import "testing"

func TestHashAndValidatePasswordBcrypt(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, err := ValidatePassword(hash, "correct horse")
	if err != nil {
		t.Fatalf("ValidatePassword: %v", err)
	}
	if !ok {
		t.Fatalf("ValidatePassword = false, want true for the correct password")
	}

	ok, err = ValidatePassword(hash, "wrong")
	if err != nil {
		t.Fatalf("ValidatePassword: %v", err)
	}
	if ok {
		t.Fatalf("ValidatePassword = true, want false for the wrong password")
	}
}

func TestValidatePasswordPlaintext(t *testing.T) {
	ok, err := ValidatePassword("plaintext:hunter2", "hunter2")
	if err != nil {
		t.Fatalf("ValidatePassword: %v", err)
	}
	if !ok {
		t.Fatalf("ValidatePassword = false, want true")
	}

	ok, _ = ValidatePassword("plaintext:hunter2", "hunter3")
	if ok {
		t.Fatalf("ValidatePassword = true, want false")
	}
}

func TestValidatePasswordUnknownMethod(t *testing.T) {
	if _, err := ValidatePassword("md5:abcdef", "whatever"); err == nil {
		t.Fatalf("expected an error for an unknown hash method")
	}
}

func TestValidatePasswordMalformed(t *testing.T) {
	if _, err := ValidatePassword("no-colon-here", "whatever"); err == nil {
		t.Fatalf("expected an error for a malformed stored hash")
	}
}
