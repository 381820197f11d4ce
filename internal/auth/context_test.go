package auth

import (
	"context"
	"testing"
)

func TestWithAuthRoundTrip(t *testing.T) {
	ac := AuthContext{UserID: 7, Username: "alice", IsAdmin: true, SessionID: 3}
	ctx := WithAuth(context.Background(), ac)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected auth context to be present")
	}
	if got != ac {
		t.Errorf("got %+v, want %+v", got, ac)
	}
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()

	if _, ok := FromContext(ctx); ok {
		t.Error("expected no auth context")
	}
	if id := UserID(ctx); id != 0 {
		t.Errorf("UserID = %d, want 0", id)
	}
	if name := Username(ctx); name != "" {
		t.Errorf("Username = %q, want empty", name)
	}
	if IsAdmin(ctx) {
		t.Error("IsAdmin = true, want false")
	}
}

func TestIsAdmin(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 1, IsAdmin: false})
	if IsAdmin(ctx) {
		t.Error("expected non-admin")
	}

	ctx = WithAuth(context.Background(), AuthContext{UserID: 2, IsAdmin: true})
	if !IsAdmin(ctx) {
		t.Error("expected admin")
	}
}
