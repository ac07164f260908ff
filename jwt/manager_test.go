package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestCreateAndParseEd25519(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "weeverytrip",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.CreateAccess("u-1", "s-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "u-1" || claims.SID != "s-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessRejectsExpired(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("test-secret")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	m.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	token, err := m.CreateAccess("u-1", "s-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	m.now = time.Now

	if _, err := m.ParseAccess(token); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("k")},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		{AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("k")},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
