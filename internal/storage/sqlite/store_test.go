package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xbiplob/WeFriend/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestPutGetUserRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	user := storage.User{
		UserID:      "u1",
		DisplayName: "Alice",
		AvatarRef:   "avatars/u1.png",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.PutUser(ctx, user); err != nil {
		t.Fatalf("put user: %v", err)
	}

	got, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.DisplayName != "Alice" || got.AvatarRef != "avatars/u1.png" {
		t.Fatalf("unexpected user %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("expected created at %s, got %s", now, got.CreatedAt)
	}

	if _, err := store.GetUser(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimUsernameEnforcesUniqueness(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	if err := store.ClaimUsername(ctx, "bob", "u2"); err != nil {
		t.Fatalf("claim username: %v", err)
	}
	if err := store.ClaimUsername(ctx, "bob", "u3"); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for taken name, got %v", err)
	}
	// One claimed name per user id as well.
	if err := store.ClaimUsername(ctx, "bobby", "u2"); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for second claim by same user, got %v", err)
	}

	userID, err := store.ResolveUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("resolve username: %v", err)
	}
	if userID != "u2" {
		t.Fatalf("expected u2, got %s", userID)
	}
	if _, err := store.ResolveUsername(ctx, "Bob"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected case-sensitive lookup miss, got %v", err)
	}
}

func TestFriendEdgeLifecycle(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	edge := storage.FriendEdge{OwnerUserID: "a", FriendUserID: "b", CreatedAt: now}
	if err := store.PutFriendEdge(ctx, edge); err != nil {
		t.Fatalf("put friend edge: %v", err)
	}
	// Upsert is idempotent.
	if err := store.PutFriendEdge(ctx, edge); err != nil {
		t.Fatalf("re-put friend edge: %v", err)
	}

	if _, err := store.GetFriendEdge(ctx, "a", "b"); err != nil {
		t.Fatalf("get friend edge: %v", err)
	}
	if _, err := store.GetFriendEdge(ctx, "b", "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected mirror direction to be separate, got %v", err)
	}

	if err := store.DeleteFriendEdge(ctx, "a", "b"); err != nil {
		t.Fatalf("delete friend edge: %v", err)
	}
	if err := store.DeleteFriendEdge(ctx, "a", "b"); err != nil {
		t.Fatalf("redundant delete should not error: %v", err)
	}
}

func TestFriendRequestDuplicateRejected(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	request := storage.FriendRequest{ToUserID: "b", FromUserID: "a", CreatedAt: time.Now().UTC()}

	if err := store.PutFriendRequest(ctx, request); err != nil {
		t.Fatalf("put friend request: %v", err)
	}
	if err := store.PutFriendRequest(ctx, request); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	sent, err := store.ListFriendRequestsFrom(ctx, "a")
	if err != nil {
		t.Fatalf("list sent requests: %v", err)
	}
	if len(sent) != 1 || sent[0].ToUserID != "b" {
		t.Fatalf("unexpected sent requests %+v", sent)
	}
}

func TestAppendMessageAssignsMonotonicSeq(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := store.AppendMessage(ctx, storage.Message{
		MessageID: "m1", ThreadID: "t1", SenderID: "a", RecipientID: "b", Text: "hi", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("append first message: %v", err)
	}
	// Same creation time; seq must break the tie.
	second, err := store.AppendMessage(ctx, storage.Message{
		MessageID: "m2", ThreadID: "t1", SenderID: "b", RecipientID: "a", Text: "hey", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("append second message: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected increasing seq, got %d then %d", first.Seq, second.Seq)
	}

	messages, err := store.ListMessages(ctx, "t1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 || messages[0].MessageID != "m1" || messages[1].MessageID != "m2" {
		t.Fatalf("unexpected message order %+v", messages)
	}
}

func TestMarkThreadMessagesReadIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"m1", "m2"} {
		if _, err := store.AppendMessage(ctx, storage.Message{
			MessageID: id, ThreadID: "t1", SenderID: "a", RecipientID: "b", Text: "hi", CreatedAt: now,
		}); err != nil {
			t.Fatalf("append message %s: %v", id, err)
		}
	}

	unread, err := store.CountUnreadMessages(ctx, "t1", "b")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if unread != 2 {
		t.Fatalf("expected 2 unread, got %d", unread)
	}

	for i := 0; i < 2; i++ {
		if err := store.MarkThreadMessagesRead(ctx, "t1", "b"); err != nil {
			t.Fatalf("mark read pass %d: %v", i+1, err)
		}
	}
	unread, err = store.CountUnreadMessages(ctx, "t1", "b")
	if err != nil {
		t.Fatalf("count unread after read: %v", err)
	}
	if unread != 0 {
		t.Fatalf("expected 0 unread, got %d", unread)
	}
}

func TestAdjustChatUnreadClampsAtZero(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	summary := storage.ChatSummary{OwnerUserID: "b", ThreadID: "t1", OtherUserID: "a", UpdatedAt: now}
	if err := store.PutChatSummary(ctx, summary); err != nil {
		t.Fatalf("put chat summary: %v", err)
	}

	if err := store.AdjustChatUnread(ctx, "b", "t1", 2); err != nil {
		t.Fatalf("adjust unread: %v", err)
	}
	if err := store.AdjustChatUnread(ctx, "b", "t1", -5); err != nil {
		t.Fatalf("adjust unread down: %v", err)
	}

	got, err := store.GetChatSummary(ctx, "b", "t1")
	if err != nil {
		t.Fatalf("get chat summary: %v", err)
	}
	if got.UnreadCount != 0 {
		t.Fatalf("expected clamp at zero, got %d", got.UnreadCount)
	}
}

func TestPutChatSummaryUpsertKeepsUnread(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.PutChatSummary(ctx, storage.ChatSummary{OwnerUserID: "b", ThreadID: "t1", OtherUserID: "a", UpdatedAt: now}); err != nil {
		t.Fatalf("put chat summary: %v", err)
	}
	if err := store.AdjustChatUnread(ctx, "b", "t1", 3); err != nil {
		t.Fatalf("adjust unread: %v", err)
	}
	// Upsert with a new last message must not reset the counter.
	if err := store.PutChatSummary(ctx, storage.ChatSummary{OwnerUserID: "b", ThreadID: "t1", OtherUserID: "a", LastMessageText: "newest", UpdatedAt: now}); err != nil {
		t.Fatalf("re-put chat summary: %v", err)
	}

	got, err := store.GetChatSummary(ctx, "b", "t1")
	if err != nil {
		t.Fatalf("get chat summary: %v", err)
	}
	if got.UnreadCount != 3 {
		t.Fatalf("expected unread 3 after upsert, got %d", got.UnreadCount)
	}
	if got.LastMessageText != "newest" {
		t.Fatalf("expected last message update, got %q", got.LastMessageText)
	}
}

func TestPostLikeSetMembership(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.PutPost(ctx, storage.Post{PostID: "p1", AuthorID: "a", Text: "hello", CreatedAt: now}); err != nil {
		t.Fatalf("put post: %v", err)
	}

	like := storage.PostLike{PostID: "p1", UserID: "b", CreatedAt: now}
	if err := store.InsertPostLike(ctx, like); err != nil {
		t.Fatalf("insert like: %v", err)
	}
	if err := store.InsertPostLike(ctx, like); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists on double like, got %v", err)
	}

	has, err := store.HasPostLike(ctx, "p1", "b")
	if err != nil {
		t.Fatalf("has like: %v", err)
	}
	if !has {
		t.Fatal("expected membership after insert")
	}

	if err := store.DeletePostLike(ctx, "p1", "b"); err != nil {
		t.Fatalf("delete like: %v", err)
	}
	if err := store.DeletePostLike(ctx, "p1", "b"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double unlike, got %v", err)
	}
}

func TestListPostsByAuthorsOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	posts := []storage.Post{
		{PostID: "p1", AuthorID: "a", Text: "first", CreatedAt: base},
		{PostID: "p2", AuthorID: "b", Text: "second", CreatedAt: base.Add(time.Minute)},
		{PostID: "p3", AuthorID: "c", Text: "other", CreatedAt: base.Add(2 * time.Minute)},
		{PostID: "p4", AuthorID: "a", Text: "third", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, post := range posts {
		if err := store.PutPost(ctx, post); err != nil {
			t.Fatalf("put post %s: %v", post.PostID, err)
		}
	}

	got, err := store.ListPostsByAuthors(ctx, []string{"a", "b"}, 10)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(got))
	}
	if got[0].PostID != "p4" || got[1].PostID != "p2" || got[2].PostID != "p1" {
		t.Fatalf("unexpected order: %s, %s, %s", got[0].PostID, got[1].PostID, got[2].PostID)
	}

	limited, err := store.ListPostsByAuthors(ctx, []string{"a", "b"}, 2)
	if err != nil {
		t.Fatalf("list posts limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to cap at 2, got %d", len(limited))
	}
}

func TestNotificationsNewestFirstAndMarkRead(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"n1", "n2", "n3"} {
		if err := store.PutNotification(ctx, storage.Notification{
			NotificationID: id,
			OwnerUserID:    "u1",
			Kind:           "post_like",
			SourceUserID:   "u2",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("put notification %s: %v", id, err)
		}
	}

	got, err := store.ListNotifications(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(got) != 2 || got[0].NotificationID != "n3" || got[1].NotificationID != "n2" {
		t.Fatalf("unexpected notification page %+v", got)
	}

	if err := store.MarkNotificationRead(ctx, "u1", "n3"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := store.MarkNotificationRead(ctx, "other", "n1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}

	if err := store.MarkAllNotificationsRead(ctx, "u1"); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	all, err := store.ListNotifications(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("list after mark all: %v", err)
	}
	for _, notification := range all {
		if !notification.Read {
			t.Fatalf("expected %s to be read", notification.NotificationID)
		}
	}
}

func TestExpirePresenceLeasesDemotesOnlyStale(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	stale := storage.PresenceLease{UserID: "u1", Online: true, ExpiresAt: now.Add(-time.Second), UpdatedAt: now}
	fresh := storage.PresenceLease{UserID: "u2", Online: true, ExpiresAt: now.Add(time.Minute), UpdatedAt: now}
	for _, lease := range []storage.PresenceLease{stale, fresh} {
		if err := store.PutPresenceLease(ctx, lease); err != nil {
			t.Fatalf("put lease %s: %v", lease.UserID, err)
		}
	}

	expired, err := store.ExpirePresenceLeases(ctx, now)
	if err != nil {
		t.Fatalf("expire leases: %v", err)
	}
	if len(expired) != 1 || expired[0] != "u1" {
		t.Fatalf("expected only u1 expired, got %v", expired)
	}

	lease, err := store.GetPresence(ctx, "u1")
	if err != nil {
		t.Fatalf("get presence: %v", err)
	}
	if lease.Online {
		t.Fatal("expected u1 offline after expiry")
	}
	lease, err = store.GetPresence(ctx, "u2")
	if err != nil {
		t.Fatalf("get presence u2: %v", err)
	}
	if !lease.Online {
		t.Fatal("expected u2 to stay online")
	}
}
