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

func TestCreateAccessRoundTrip(t *testing.T) {
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "goshield",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, exp, err := m.CreateAccess(Subject{UserID: "u1", AccountID: "a1", Role: "owner"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if time.Until(exp) <= 14*time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "u1" || claims.AID != "a1" || claims.Role != "owner" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestNewManagerRejectsShortHMACSecret(t *testing.T) {
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParseAccessExpiredIsDistinct(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Now:           clock,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, _, err := m.CreateAccess(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	now = now.Add(16 * time.Minute)
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestParseAccessRequiresExpiry(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: secret})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, AccessClaims{UID: "u1"})
	token, _ := tok.SignedString(secret)
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected missing exp to be invalid, got %v", err)
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "goshield",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, _, err := m.CreateAccess(Subject{UserID: "u"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(access); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	sign := func(c AccessClaims) string {
		tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c)
		s, _ := tok.SignedString(priv)
		return s
	}

	tests := []struct {
		name   string
		claims AccessClaims
		ok     bool
	}{
		{
			name: "wrong issuer",
			claims: AccessClaims{UID: "u", RegisteredClaims: gjwt.RegisteredClaims{
				Issuer:    "other",
				Audience:  gjwt.ClaimStrings{"api"},
				ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
			}},
		},
		{
			name: "wrong audience",
			claims: AccessClaims{UID: "u", RegisteredClaims: gjwt.RegisteredClaims{
				Issuer:    "goshield",
				Audience:  gjwt.ClaimStrings{"other-api"},
				ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
			}},
		},
		{
			name: "within leeway",
			claims: AccessClaims{UID: "u", RegisteredClaims: gjwt.RegisteredClaims{
				Issuer:    "goshield",
				Audience:  gjwt.ClaimStrings{"api"},
				ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
				IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
			}},
			ok: true,
		},
		{
			name: "expired past leeway",
			claims: AccessClaims{UID: "u", RegisteredClaims: gjwt.RegisteredClaims{
				Issuer:    "goshield",
				Audience:  gjwt.ClaimStrings{"api"},
				ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
			}},
		},
		{
			name: "iat far in future",
			claims: AccessClaims{UID: "u", RegisteredClaims: gjwt.RegisteredClaims{
				Issuer:    "goshield",
				Audience:  gjwt.ClaimStrings{"api"},
				ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
				IssuedAt:  gjwt.NewNumericDate(time.Now().Add(30 * time.Minute)),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ParseAccess(sign(tt.claims))
			if tt.ok && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected failure")
			}
		})
	}
}

func TestParseAccessUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.ParseAccess(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}
