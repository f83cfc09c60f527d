package session

import (
	"context"
	"errors"
	"testing"
	"time"

	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
)

func TestNotifierFiresOncePerTransition(t *testing.T) {
	t.Parallel()

	notifier := NewNotifier()
	var transitions []string
	cancel := notifier.OnIdentityChange(func(userID string) {
		transitions = append(transitions, userID)
	})
	defer cancel()

	notifier.Announce("u1")
	notifier.Announce("u1") // duplicate, no transition
	notifier.Announce("")
	notifier.Announce("u2")

	want := []string{"u1", "", "u2"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), transitions)
	}
	for i, userID := range want {
		if transitions[i] != userID {
			t.Fatalf("transition %d: expected %q, got %q", i, userID, transitions[i])
		}
	}

	current, err := notifier.CurrentUserID(context.Background())
	if err != nil {
		t.Fatalf("current user id: %v", err)
	}
	if current != "u2" {
		t.Fatalf("expected current user u2, got %q", current)
	}
}

func TestNotifierCancelStopsCallbacks(t *testing.T) {
	t.Parallel()

	notifier := NewNotifier()
	fired := 0
	cancel := notifier.OnIdentityChange(func(string) { fired++ })

	notifier.Announce("u1")
	cancel()
	notifier.Announce("u2")

	if fired != 1 {
		t.Fatalf("expected one callback after cancel, got %d", fired)
	}
}

func TestVerifierRoundTrip(t *testing.T) {
	t.Parallel()

	verifier, err := NewVerifier([]byte("test-secret"))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := verifier.IssueToken("u1", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	userID, err := verifier.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("expected u1, got %q", userID)
	}
}

func TestVerifierRejectsBadTokens(t *testing.T) {
	t.Parallel()

	verifier, err := NewVerifier([]byte("test-secret"))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
	}
	for _, tc := range cases {
		_, err := verifier.Authenticate(context.Background(), tc.token)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !errors.Is(err, platformerrors.New(platformerrors.CodeUnauthenticated, "")) {
			t.Fatalf("%s: expected unauthenticated error, got %v", tc.name, err)
		}
	}
}

func TestVerifierRejectsForeignSignature(t *testing.T) {
	t.Parallel()

	issuer, err := NewVerifier([]byte("other-secret"))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := issuer.IssueToken("u1", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	verifier, err := NewVerifier([]byte("test-secret"))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.Authenticate(context.Background(), token); err == nil {
		t.Fatal("expected foreign signature to be rejected")
	}
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	verifier, err := NewVerifier([]byte("test-secret"))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier.clock = func() time.Time { return issued }
	token, err := verifier.IssueToken("u1", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	verifier.clock = func() time.Time { return issued.Add(time.Hour) }
	if _, err := verifier.Authenticate(context.Background(), token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
