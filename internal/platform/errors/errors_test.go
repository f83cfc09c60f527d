package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := New(CodeAlreadyFriends, "users are already friends")
	if !errors.Is(err, New(CodeAlreadyFriends, "different message")) {
		t.Fatal("expected errors with the same code to match")
	}
	if errors.Is(err, New(CodeNotFriends, "users are already friends")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("disk full")
	err := Wrap(CodeStoreUnavailable, "store write failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be traversable")
	}
}

func TestKindClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want Kind
	}{
		{CodeUnauthenticated, KindUnauthenticated},
		{CodeUserNotFound, KindNotFound},
		{CodeNotAuthor, KindForbidden},
		{CodeFriendRequestDuplicate, KindConflict},
		{CodeMessageEmpty, KindValidation},
		{CodeStoreUnavailable, KindUnavailable},
		{Code("SOMETHING_ELSE"), KindUnknown},
	}
	for _, tc := range cases {
		if got := tc.code.Kind(); got != tc.want {
			t.Fatalf("kind of %s: expected %s, got %s", tc.code, tc.want, got)
		}
	}
}

func TestOnlyUnavailableIsRetryable(t *testing.T) {
	t.Parallel()

	if !KindUnavailable.Retryable() {
		t.Fatal("expected unavailable to be retryable")
	}
	for _, kind := range []Kind{KindUnauthenticated, KindNotFound, KindForbidden, KindConflict, KindValidation, KindUnknown} {
		if kind.Retryable() {
			t.Fatalf("expected %s not to be retryable", kind)
		}
	}
}

func TestToGRPCStatusCarriesCodeAndReason(t *testing.T) {
	t.Parallel()

	err := WithMetadata(CodeUsernameTaken, "username is taken", map[string]string{"username": "bob"})
	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected a gRPC status error")
	}
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %s", st.Code())
	}
	if st.Message() != "username is taken" {
		t.Fatalf("unexpected status message %q", st.Message())
	}
	if len(st.Details()) != 1 {
		t.Fatalf("expected one status detail, got %d", len(st.Details()))
	}
}

func TestKindOfForeignError(t *testing.T) {
	t.Parallel()

	if got := KindOf(fmt.Errorf("plain")); got != KindUnknown {
		t.Fatalf("expected unknown kind for foreign error, got %s", got)
	}
	if got := KindOf(fmt.Errorf("wrapped: %w", New(CodePostNotFound, "post missing"))); got != KindNotFound {
		t.Fatalf("expected not-found kind through wrapping, got %s", got)
	}
}
