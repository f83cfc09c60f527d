// Package storage defines the persistence contracts for the shared logical
// store. Every method is a single atomic path write or read; the store never
// exposes a cross-entity transaction, so multi-path invariants are owned by
// the engines through write ordering and reconciliation.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
var ErrAlreadyExists = errors.New("record already exists")

// User stores one account profile row.
type User struct {
	UserID      string
	DisplayName string
	AvatarRef   string
	Username    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FriendEdge stores one direction of a confirmed friendship. Edges are
// mirrored: an accepted friendship writes both (A,B) and (B,A).
type FriendEdge struct {
	OwnerUserID  string
	FriendUserID string
	CreatedAt    time.Time
}

// FriendRequest stores one pending directed request.
type FriendRequest struct {
	ToUserID   string
	FromUserID string
	CreatedAt  time.Time
}

// ChatThread stores the canonical per-pair thread summary.
type ChatThread struct {
	ThreadID        string
	UserA           string
	UserB           string
	LastMessageText string
	LastMessageAt   time.Time
	UpdatedAt       time.Time
}

// Message stores one immutable chat message. Seq is assigned by the store at
// append time and breaks creation-time ties within a thread.
type Message struct {
	MessageID   string
	ThreadID    string
	SenderID    string
	RecipientID string
	Text        string
	Read        bool
	CreatedAt   time.Time
	Seq         int64
}

// ChatSummary stores one user's denormalized view of a thread.
type ChatSummary struct {
	OwnerUserID     string
	ThreadID        string
	OtherUserID     string
	LastMessageText string
	LastMessageAt   time.Time
	UnreadCount     int64
	UpdatedAt       time.Time
}

// Post stores one feed post with denormalized engagement counters.
type Post struct {
	PostID        string
	AuthorID      string
	Text          string
	ImageRef      string
	LikesCount    int64
	CommentsCount int64
	CreatedAt     time.Time
}

// PostLike stores one like-set membership row.
type PostLike struct {
	PostID    string
	UserID    string
	CreatedAt time.Time
}

// Comment stores one post comment in arrival order.
type Comment struct {
	CommentID string
	PostID    string
	AuthorID  string
	Text      string
	CreatedAt time.Time
	Seq       int64
}

// Notification stores one recipient inbox item.
type Notification struct {
	NotificationID string
	OwnerUserID    string
	Kind           string
	SourceUserID   string
	PayloadJSON    string
	Read           bool
	CreatedAt      time.Time
}

// PresenceLease stores one user's online lease. A user is online while the
// lease is unexpired; the sweeper demotes expired leases to offline.
type PresenceLease struct {
	UserID    string
	Online    bool
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// UserStore persists account profiles and the username uniqueness index.
type UserStore interface {
	PutUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID string) (User, error)
	// ClaimUsername inserts into the username index; ErrAlreadyExists when the
	// name is taken. The index insert is the single mutual-exclusion path.
	ClaimUsername(ctx context.Context, username string, userID string) error
	SetUserUsername(ctx context.Context, userID string, username string) error
	ResolveUsername(ctx context.Context, username string) (string, error)
}

// SocialStore persists friend edges and pending requests.
type SocialStore interface {
	PutFriendEdge(ctx context.Context, edge FriendEdge) error
	GetFriendEdge(ctx context.Context, ownerUserID, friendUserID string) (FriendEdge, error)
	DeleteFriendEdge(ctx context.Context, ownerUserID, friendUserID string) error
	ListFriendEdges(ctx context.Context, ownerUserID string) ([]FriendEdge, error)

	PutFriendRequest(ctx context.Context, request FriendRequest) error
	GetFriendRequest(ctx context.Context, toUserID, fromUserID string) (FriendRequest, error)
	DeleteFriendRequest(ctx context.Context, toUserID, fromUserID string) error
	ListFriendRequestsTo(ctx context.Context, toUserID string) ([]FriendRequest, error)
	ListFriendRequestsFrom(ctx context.Context, fromUserID string) ([]FriendRequest, error)
}

// MessagingStore persists threads, message logs, and per-user summaries.
type MessagingStore interface {
	PutChatThread(ctx context.Context, thread ChatThread) error
	GetChatThread(ctx context.Context, threadID string) (ChatThread, error)

	// AppendMessage assigns Seq at write time and returns the stored record.
	AppendMessage(ctx context.Context, message Message) (Message, error)
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
	// MarkThreadMessagesRead flags every unread message addressed to the
	// recipient; one atomic statement, safe to repeat.
	MarkThreadMessagesRead(ctx context.Context, threadID, recipientID string) error
	CountUnreadMessages(ctx context.Context, threadID, recipientID string) (int64, error)

	PutChatSummary(ctx context.Context, summary ChatSummary) error
	GetChatSummary(ctx context.Context, ownerUserID, threadID string) (ChatSummary, error)
	ListChatSummaries(ctx context.Context, ownerUserID string) ([]ChatSummary, error)
	// AdjustChatUnread adds delta to the unread counter in one atomic
	// statement, clamping at zero.
	AdjustChatUnread(ctx context.Context, ownerUserID, threadID string, delta int64) error
	SetChatUnread(ctx context.Context, ownerUserID, threadID string, value int64) error
}

// FeedStore persists posts, like sets, and comment logs.
type FeedStore interface {
	PutPost(ctx context.Context, post Post) error
	GetPost(ctx context.Context, postID string) (Post, error)
	DeletePost(ctx context.Context, postID string) error
	ListPostsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]Post, error)
	// DeletePostLikesByPost and DeleteCommentsByPost drop index entries left
	// behind by a post deletion; each is one atomic statement.
	DeletePostLikesByPost(ctx context.Context, postID string) error
	DeleteCommentsByPost(ctx context.Context, postID string) error

	InsertPostLike(ctx context.Context, like PostLike) error
	DeletePostLike(ctx context.Context, postID, userID string) error
	HasPostLike(ctx context.Context, postID, userID string) (bool, error)
	ListPostLikes(ctx context.Context, postID string) ([]PostLike, error)
	CountPostLikes(ctx context.Context, postID string) (int64, error)
	// AdjustPostLikes adds delta to the denormalized counter atomically.
	AdjustPostLikes(ctx context.Context, postID string, delta int64) error
	SetPostLikesCount(ctx context.Context, postID string, value int64) error

	AppendComment(ctx context.Context, comment Comment) (Comment, error)
	GetComment(ctx context.Context, commentID string) (Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
	ListComments(ctx context.Context, postID string) ([]Comment, error)
	CountComments(ctx context.Context, postID string) (int64, error)
	AdjustPostComments(ctx context.Context, postID string, delta int64) error
	SetPostCommentsCount(ctx context.Context, postID string, value int64) error
}

// NotificationStore persists recipient notification queues.
type NotificationStore interface {
	PutNotification(ctx context.Context, notification Notification) error
	ListNotifications(ctx context.Context, ownerUserID string, limit int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, ownerUserID, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, ownerUserID string) error
}

// PresenceStore persists online leases with store-side expiry.
type PresenceStore interface {
	PutPresenceLease(ctx context.Context, lease PresenceLease) error
	GetPresence(ctx context.Context, userID string) (PresenceLease, error)
	// ExpirePresenceLeases demotes every lease past now and returns the
	// affected user ids.
	ExpirePresenceLeases(ctx context.Context, now time.Time) ([]string, error)
}

// Store aggregates every engine contract over the one logical store.
type Store interface {
	UserStore
	SocialStore
	MessagingStore
	FeedStore
	NotificationStore
	PresenceStore
}
