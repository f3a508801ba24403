package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/rl1809/zlagoda/internal/core/access"
)

func TestSignAndParse(t *testing.T) {
	s := NewSigner("secret", time.Hour)

	token, err := s.Sign("E001", access.Cashier, "cashier@zlagoda.test")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := s.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.EmployeeID != "E001" || claims.Role != access.Cashier {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestParse_Rejects(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	good, _ := s.Sign("E001", access.Manager, "")

	expired := NewSigner("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Sign("E001", access.Manager, "")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{EmployeeID: "E001", Role: access.Manager}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	badRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{EmployeeID: "E001", Role: "owner"}).
		SignedString([]byte("secret"))

	tests := []struct {
		name  string
		s     *Signer
		token string
	}{
		{"wrong secret", NewSigner("other", time.Hour), good},
		{"expired", s, old},
		{"alg none", s, none},
		{"unknown role", s, badRole},
		{"garbage", s, "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.s.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestSign_ValidatesInput(t *testing.T) {
	s := NewSigner("secret", 0)
	if _, err := s.Sign("cashier-1", access.Cashier, ""); err == nil {
		t.Error("expected error for malformed employee id")
	}
	if _, err := s.Sign("E001", "owner", ""); err == nil {
		t.Error("expected error for unknown role")
	}
}
