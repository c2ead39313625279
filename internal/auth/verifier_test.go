package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wasil/internal/types"
)

func TestVerify_RoundTrip(t *testing.T) {
	v := NewJWTVerifier("test-secret")
	want := types.Identity{ID: "u1", Role: types.RoleDriver}

	token, err := v.Sign(want, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != want {
		t.Errorf("identity = %+v, want %+v", got, want)
	}
}

func TestVerify_Rejects(t *testing.T) {
	v := NewJWTVerifier("test-secret")
	other := NewJWTVerifier("other-secret")

	cases := []struct {
		name  string
		token func() string
	}{
		{"empty token", func() string { return "" }},
		{"garbage", func() string { return "not.a.jwt" }},
		{"wrong secret", func() string {
			tok, _ := other.Sign(types.Identity{ID: "u1", Role: types.RoleCustomer}, time.Hour)
			return tok
		}},
		{"expired", func() string {
			tok, _ := v.Sign(types.Identity{ID: "u1", Role: types.RoleCustomer}, -time.Minute)
			return tok
		}},
		{"missing subject", func() string {
			tok, _ := v.Sign(types.Identity{Role: types.RoleCustomer}, time.Hour)
			return tok
		}},
		{"missing role", func() string {
			tok, _ := v.Sign(types.Identity{ID: "u1"}, time.Hour)
			return tok
		}},
		{"unsigned algorithm", func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
				Role:             "admin",
				RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
			})
			s, _ := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
			return s
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(tc.token()); err != ErrInvalidToken {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
