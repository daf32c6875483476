package identity

import (
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), "http://test", time.Hour)

	tok, err := issuer.Issue("user-1", "web")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := issuer.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-1" || claims.Guard != "web" {
		t.Errorf("claims = (%q, %q), want (user-1, web)", claims.Subject, claims.Guard)
	}
}

func TestVerify_wrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret-a"), "http://test", time.Hour)
	other := NewTokenIssuer([]byte("secret-b"), "http://test", time.Hour)

	tok, err := issuer.Issue("user-1", "web")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := other.Verify(tok); err == nil {
		t.Error("token signed with a different secret must not verify")
	}
}

func TestVerify_garbage(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), "http://test", time.Hour)
	if _, err := issuer.Verify("not-a-jwt"); err == nil {
		t.Error("garbage token must not verify")
	}
}
