package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/authgate-io/authgate/keyset"
)

const (
	testIssuer   = "http://idp.test/realms/master"
	testAudience = "gateway-client"
)

func newTestKeys(t *testing.T, kid string) (*rsa.PrivateKey, *keyset.Set) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	path := filepath.Join(t.TempDir(), "jwks.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write jwks: %v", err)
	}
	keys, err := keyset.FromFile(path)
	if err != nil {
		t.Fatalf("load keys: %v", err)
	}
	return pk, keys
}

func signToken(t *testing.T, pk *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func baseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                testIssuer,
		"aud":                testAudience,
		"sub":                "u1",
		"preferred_username": "alice",
		"email":              "alice@example.com",
		"exp":                now.Add(time.Hour).Unix(),
		"iat":                now.Unix(),
	}
}

func newTestVerifier(t *testing.T, keys *keyset.Set) *Verifier {
	t.Helper()
	v, err := NewVerifier(keys, testIssuer, testAudience)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestVerify_HappyPath(t *testing.T) {
	pk, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)

	claims := baseClaims()
	claims["realm_access"] = map[string]any{"roles": []string{"can_impersonate", "user"}}
	tok := signToken(t, pk, "k1", claims)

	got, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Subject() != "u1" {
		t.Fatalf("want sub u1, got %q", got.Subject())
	}
	if got.PreferredUsername() != "alice" {
		t.Fatalf("want alice, got %q", got.PreferredUsername())
	}
	if got.Email() != "alice@example.com" {
		t.Fatalf("email mismatch: %q", got.Email())
	}
	if !got.HasRealmRole("can_impersonate") {
		t.Fatalf("role set lost in verification: %v", got.RealmRoles())
	}
}

func TestVerify_UnknownKid(t *testing.T) {
	pk, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)

	tok := signToken(t, pk, "other-kid", baseClaims())
	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("want ErrUnknownKey, got %v", err)
	}
}

func TestVerify_MissingKidHeader(t *testing.T) {
	pk, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims())
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Verify(context.Background(), s); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("want ErrUnknownKey for kid-less token, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	_, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)

	for _, tok := range []string{"", "garbage", "a.b", "!!!.???.###"} {
		if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrMalformed) {
			t.Fatalf("token %q: want ErrMalformed, got %v", tok, err)
		}
	}
}

func TestVerify_BadIssuer(t *testing.T) {
	pk, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)

	claims := baseClaims()
	claims["iss"] = "http://evil.test/realms/master"
	tok := signToken(t, pk, "k1", claims)

	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrBadIssuer) {
		t.Fatalf("want ErrBadIssuer, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	pk, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)

	claims := baseClaims()
	claims["exp"] = time.Now().Add(-2 * time.Hour).Unix()
	tok := signToken(t, pk, "k1", claims)

	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrInvalidClaims) {
		t.Fatalf("want ErrInvalidClaims for expired token, got %v", err)
	}
}

func TestVerify_NotYetValid(t *testing.T) {
	pk, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)

	claims := baseClaims()
	claims["nbf"] = time.Now().Add(2 * time.Hour).Unix()
	tok := signToken(t, pk, "k1", claims)

	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrInvalidClaims) {
		t.Fatalf("want ErrInvalidClaims for nbf in future, got %v", err)
	}
}

func TestVerify_MissingExp(t *testing.T) {
	pk, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)

	claims := baseClaims()
	delete(claims, "exp")
	tok := signToken(t, pk, "k1", claims)

	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrInvalidClaims) {
		t.Fatalf("want ErrInvalidClaims for exp-less token, got %v", err)
	}
}

func TestVerify_AudienceMismatch(t *testing.T) {
	pk, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)

	claims := baseClaims()
	claims["aud"] = "someone-else"
	tok := signToken(t, pk, "k1", claims)

	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrInvalidClaims) {
		t.Fatalf("want ErrInvalidClaims for audience mismatch, got %v", err)
	}
}

func TestVerify_AudienceArrayAccepted(t *testing.T) {
	pk, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)

	claims := baseClaims()
	claims["aud"] = []string{"other", testAudience}
	tok := signToken(t, pk, "k1", claims)

	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatalf("aud array containing expected audience must verify: %v", err)
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	_, keys := newTestKeys(t, "k1")
	otherPK, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	v := newTestVerifier(t, keys)

	// Signed by a key the cache has never seen, but naming a cached kid.
	tok := signToken(t, otherPK, "k1", baseClaims())
	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}

func TestVerify_AlgorithmConfusion(t *testing.T) {
	_, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)

	// HMAC token naming an RSA kid: the verifier must hold the token to the
	// key descriptor's RS256, not the header's HS256.
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims())
	tok.Header["kid"] = "k1"
	s, err := tok.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := v.Verify(context.Background(), s); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}

func TestVerify_CanceledContext(t *testing.T) {
	pk, keys := newTestKeys(t, "k1")
	v := newTestVerifier(t, keys)
	tok := signToken(t, pk, "k1", baseClaims())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := v.Verify(ctx, tok); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestClaimSet_RolesAbsent(t *testing.T) {
	cs := ClaimSet{"sub": "u1"}
	if got := cs.RealmRoles(); len(got) != 0 {
		t.Fatalf("absent realm_access must yield empty roles, got %v", got)
	}
	if cs.HasRealmRole("can_impersonate") {
		t.Fatalf("absent roles must not grant capabilities")
	}
	cs = ClaimSet{"realm_access": map[string]any{"roles": "not-a-list"}}
	if got := cs.RealmRoles(); len(got) != 0 {
		t.Fatalf("malformed roles must yield empty roles, got %v", got)
	}
}
