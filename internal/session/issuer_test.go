package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerify(t *testing.T) {
	iss, err := NewIssuer("s3cret", "service-account", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	tok, exp, err := iss.Issue(1234567890123, "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := iss.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	id, _ := claims.AccountID()
	if id != 1234567890123 || claims.Username != "alice" || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	iss, _ := NewIssuer("s3cret", "service-account", time.Hour)
	tok, _, _ := iss.Issue(1, "alice")

	other, _ := NewIssuer("different", "service-account", time.Hour)
	if _, err := other.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: %v", err)
	}

	wrongIssuer, _ := NewIssuer("s3cret", "someone-else", time.Hour)
	if _, err := wrongIssuer.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong issuer: %v", err)
	}

	later, _ := NewIssuer("s3cret", "service-account", time.Hour)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := later.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired: %v", err)
	}

	parts := strings.Split(tok, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := iss.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tampered: %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "iss": "service-account", "exp": time.Now().Add(time.Hour).Unix()})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := iss.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("alg none: %v", err)
	}
}

func TestRandomSecretWhenEmpty(t *testing.T) {
	a, _ := NewIssuer("", "x", time.Hour)
	b, _ := NewIssuer("", "x", time.Hour)
	tok, _, _ := a.Issue(1, "alice")
	if _, err := a.Verify(tok); err != nil {
		t.Fatalf("own token: %v", err)
	}
	if _, err := b.Verify(tok); err == nil {
		t.Fatal("separate random secrets must not verify each other's tokens")
	}
}
