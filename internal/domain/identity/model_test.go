package identity

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestUser_PasswordRoundTrip(t *testing.T) {
	u := &User{Username: "jdoe"}
	if err := u.SetPassword("correct horse", bcrypt.MinCost); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if u.PasswordHash == "" || u.PasswordHash == "correct horse" {
		t.Fatalf("expected a bcrypt hash, got %q", u.PasswordHash)
	}
	if !u.CheckPassword("correct horse") {
		t.Error("expected password to match")
	}
	if u.CheckPassword("battery staple") {
		t.Error("expected wrong password to fail")
	}
}

func TestUser_CheckPassword_EmptyHash(t *testing.T) {
	u := &User{}
	if u.CheckPassword("") {
		t.Error("empty hash must never match")
	}
}
