// Package errors provides structured error handling shared by every engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"

	// Profile errors
	CodeUserNotFound            Code = "USER_NOT_FOUND"
	CodeUsernameInvalid         Code = "USERNAME_INVALID"
	CodeUsernameTaken           Code = "USERNAME_TAKEN"
	CodeUsernameAlreadyClaimed  Code = "USERNAME_ALREADY_CLAIMED"
	CodeProfileDisplayNameEmpty Code = "PROFILE_DISPLAY_NAME_EMPTY"

	// Social graph errors
	CodeFriendRequestSelf       Code = "FRIEND_REQUEST_SELF"
	CodeFriendRequestDuplicate  Code = "FRIEND_REQUEST_DUPLICATE"
	CodeFriendRequestReciprocal Code = "FRIEND_REQUEST_RECIPROCAL"
	CodeFriendRequestNotFound   Code = "FRIEND_REQUEST_NOT_FOUND"
	CodeAlreadyFriends          Code = "ALREADY_FRIENDS"

	// Messaging errors
	CodeNotFriends     Code = "NOT_FRIENDS"
	CodeMessageEmpty   Code = "MESSAGE_EMPTY"
	CodeThreadNotFound Code = "THREAD_NOT_FOUND"

	// Feed errors
	CodePostEmpty       Code = "POST_EMPTY"
	CodePostNotFound    Code = "POST_NOT_FOUND"
	CodeCommentEmpty    Code = "COMMENT_EMPTY"
	CodeCommentNotFound Code = "COMMENT_NOT_FOUND"
	CodeNotAuthor       Code = "NOT_AUTHOR"

	// Notification errors
	CodeNotificationNotFound Code = "NOTIFICATION_NOT_FOUND"

	// Blob errors
	CodeBlobInvalidType Code = "BLOB_INVALID_TYPE"
	CodeBlobTooLarge    Code = "BLOB_TOO_LARGE"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// Kind is the coarse error taxonomy surfaced to callers.
type Kind string

const (
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindNotFound        Kind = "NOT_FOUND"
	KindForbidden       Kind = "FORBIDDEN"
	KindConflict        Kind = "CONFLICT"
	KindValidation      Kind = "VALIDATION"
	KindUnavailable     Kind = "UNAVAILABLE"
	KindUnknown         Kind = "UNKNOWN"
)

// Kind maps a code to its taxonomy kind.
func (c Code) Kind() Kind {
	switch c {
	case CodeUnauthenticated:
		return KindUnauthenticated
	case CodeUserNotFound,
		CodeFriendRequestNotFound,
		CodeThreadNotFound,
		CodePostNotFound,
		CodeCommentNotFound,
		CodeNotificationNotFound,
		CodeNotFound:
		return KindNotFound
	case CodeNotAuthor:
		return KindForbidden
	case CodeUsernameTaken,
		CodeUsernameAlreadyClaimed,
		CodeFriendRequestDuplicate,
		CodeFriendRequestReciprocal,
		CodeAlreadyFriends:
		return KindConflict
	case CodeUsernameInvalid,
		CodeProfileDisplayNameEmpty,
		CodeFriendRequestSelf,
		CodeNotFriends,
		CodeMessageEmpty,
		CodePostEmpty,
		CodeCommentEmpty,
		CodeBlobInvalidType,
		CodeBlobTooLarge:
		return KindValidation
	case CodeStoreUnavailable:
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// Retryable reports whether callers may retry the failed operation with backoff.
func (k Kind) Retryable() bool {
	return k == KindUnavailable
}

// GRPCCode maps taxonomy kinds to gRPC status codes for the wire envelope.
func (k Kind) GRPCCode() codes.Code {
	switch k {
	case KindUnauthenticated:
		return codes.Unauthenticated
	case KindNotFound:
		return codes.NotFound
	case KindForbidden:
		return codes.PermissionDenied
	case KindConflict:
		return codes.FailedPrecondition
	case KindValidation:
		return codes.InvalidArgument
	case KindUnavailable:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}
