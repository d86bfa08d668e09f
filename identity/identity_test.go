package identity

import (
	"context"
	"reflect"
	"testing"

	"github.com/authgate-io/authgate/auth"
)

func claimsWithRoles(roles ...any) auth.ClaimSet {
	return auth.ClaimSet{
		"sub":                "u1",
		"preferred_username": "alice",
		"email":              "alice@example.com",
		"realm_access":       map[string]any{"roles": roles},
	}
}

func TestDecide_RoleGrantsDelegation(t *testing.T) {
	if got := Decide(claimsWithRoles("can_impersonate")); got != Delegated {
		t.Fatalf("want Delegated, got %v", got)
	}
	if got := Decide(claimsWithRoles("user", "admin")); got != Direct {
		t.Fatalf("want Direct, got %v", got)
	}
}

func TestDecide_AbsentRolesMeansDirect(t *testing.T) {
	if got := Decide(auth.ClaimSet{"sub": "u1"}); got != Direct {
		t.Fatalf("claims without realm_access must decide Direct, got %v", got)
	}
	if got := Decide(claimsWithRoles()); got != Direct {
		t.Fatalf("empty role set must decide Direct, got %v", got)
	}
}

func TestResolve_DirectIgnoresOverrides(t *testing.T) {
	claims := claimsWithRoles()
	got := Resolve(claims, Direct, Overrides{User: "bob", Email: "bob@example.com"})
	if got.User != "alice" || got.Email != "alice@example.com" {
		t.Fatalf("overrides must be ignored without delegation, got %+v", got)
	}
}

func TestResolve_DelegatedHonorsOverrides(t *testing.T) {
	claims := claimsWithRoles("can_impersonate")
	got := Resolve(claims, Delegated, Overrides{User: "bob"})
	if got.User != "bob" {
		t.Fatalf("want bob, got %q", got.User)
	}
	// Unset override fields fall back to token-derived values.
	if got.Email != "alice@example.com" {
		t.Fatalf("want token email fallback, got %q", got.Email)
	}
}

func TestResolve_UserFallsBackToSub(t *testing.T) {
	claims := auth.ClaimSet{"sub": "u1"}
	got := Resolve(claims, Direct, Overrides{})
	if got.User != "u1" {
		t.Fatalf("want sub fallback, got %q", got.User)
	}
	if got.Email != "" {
		t.Fatalf("missing email must resolve empty, got %q", got.Email)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	claims := claimsWithRoles("can_impersonate")
	o := Overrides{User: "bob", Email: "bob@example.com"}
	first := Resolve(claims, Delegated, o)
	second := Resolve(claims, Delegated, o)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolve must be pure: %+v != %+v", first, second)
	}
}

func TestContextRoundTrip(t *testing.T) {
	a := Actor{User: "alice", Email: "alice@example.com"}
	ctx := WithActor(context.Background(), a)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatalf("actor missing from context")
	}
	if got.User != a.User || got.Email != a.Email {
		t.Fatalf("actor mismatch: %+v", got)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("bare context must not carry an actor")
	}
}
