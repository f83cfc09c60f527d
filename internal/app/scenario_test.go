package app

import (
	"context"
	"testing"
	"time"

	"github.com/xbiplob/WeFriend/internal/livequery"
	"github.com/xbiplob/WeFriend/internal/platform/blob"
	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/services/feed"
	"github.com/xbiplob/WeFriend/internal/services/messaging"
	"github.com/xbiplob/WeFriend/internal/services/notifications"
	"github.com/xbiplob/WeFriend/internal/services/presence"
	"github.com/xbiplob/WeFriend/internal/services/profile"
	"github.com/xbiplob/WeFriend/internal/services/social"
	"github.com/xbiplob/WeFriend/internal/storage"
	"github.com/xbiplob/WeFriend/internal/storage/sqlite"
)

type engines struct {
	store     *sqlite.Store
	broker    *livequery.Broker
	profile   *profile.Service
	presence  *presence.Service
	social    *social.Service
	messaging *messaging.Service
	feed      *feed.Service
	notify    *notifications.Service
}

func newEngines(t *testing.T) *engines {
	t.Helper()

	store, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := func() time.Time { return time.Now().UTC() }
	broker := livequery.NewBroker()
	notifySvc := notifications.NewService(store, broker, clock)
	profileSvc := profile.NewService(store, broker, clock)
	socialSvc := social.NewService(store, profileSvc, notifySvc, broker, clock)
	presenceSvc := presence.NewService(store, socialSvc, broker, clock)
	messagingSvc := messaging.NewService(store, socialSvc, notifySvc, broker, clock)
	feedSvc := feed.NewService(store, socialSvc, profileSvc, notifySvc, blob.NewMemoryStore("http://localhost/blobs"), broker, clock)

	return &engines{
		store:     store,
		broker:    broker,
		profile:   profileSvc,
		presence:  presenceSvc,
		social:    socialSvc,
		messaging: messagingSvc,
		feed:      feedSvc,
		notify:    notifySvc,
	}
}

func (e *engines) signUp(t *testing.T, userID, displayName, username string) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.profile.EnsureUser(ctx, userID, displayName, ""); err != nil {
		t.Fatalf("ensure %s: %v", userID, err)
	}
	if err := e.profile.ClaimUsername(ctx, userID, username); err != nil {
		t.Fatalf("claim %s: %v", username, err)
	}
}

func (e *engines) befriend(t *testing.T, fromUserID, toUsername, toUserID string) {
	t.Helper()
	ctx := context.Background()
	if err := e.social.SendFriendRequest(ctx, fromUserID, toUsername); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := e.social.AcceptFriendRequest(ctx, toUserID, fromUserID); err != nil {
		t.Fatalf("accept: %v", err)
	}
}

func TestFriendRequestLifecycleEndToEnd(t *testing.T) {
	t.Parallel()

	e := newEngines(t)
	ctx := context.Background()
	e.signUp(t, "u1", "Alice", "alice")
	e.signUp(t, "u2", "Bob", "bob")

	if err := e.social.SendFriendRequest(ctx, "u1", "bob"); err != nil {
		t.Fatalf("request: %v", err)
	}

	// A retry of the same request is a conflict.
	err := e.social.SendFriendRequest(ctx, "u1", "bob")
	if platformerrors.KindOf(err) != platformerrors.KindConflict {
		t.Fatalf("expected conflict on retry, got %v", err)
	}

	if err := e.social.AcceptFriendRequest(ctx, "u2", "u1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	for _, pair := range [][2]string{{"u1", "u2"}, {"u2", "u1"}} {
		friends, err := e.social.AreFriends(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("are friends %v: %v", pair, err)
		}
		if !friends {
			t.Fatalf("expected %v friends", pair)
		}
	}

	// The requester holds an accepted notification.
	items, err := e.notify.List(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	found := false
	for _, item := range items {
		if item.Kind == string(notifications.KindFriendAccepted) && item.SourceUserID == "u2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected friend accepted notification, got %+v", items)
	}
}

func TestUnreadCounterLifecycleEndToEnd(t *testing.T) {
	t.Parallel()

	e := newEngines(t)
	ctx := context.Background()
	e.signUp(t, "u1", "Alice", "alice")
	e.signUp(t, "u2", "Bob", "bob")
	e.befriend(t, "u1", "bob", "u2")

	if _, err := e.messaging.SendMessage(ctx, "u1", "u2", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	unreadFor := func(userID string) int64 {
		chats, err := e.messaging.ListChats(ctx, userID)
		if err != nil {
			t.Fatalf("list chats: %v", err)
		}
		if len(chats) != 1 {
			t.Fatalf("expected one chat for %s, got %d", userID, len(chats))
		}
		return chats[0].UnreadCount
	}

	if got := unreadFor("u2"); got != 1 {
		t.Fatalf("expected recipient unread 1, got %d", got)
	}
	if got := unreadFor("u1"); got != 0 {
		t.Fatalf("expected sender unread 0, got %d", got)
	}

	if err := e.messaging.MarkMessagesAsRead(ctx, "u2", "u1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if got := unreadFor("u2"); got != 0 {
		t.Fatalf("expected unread 0 after read, got %d", got)
	}
	if err := e.messaging.MarkMessagesAsRead(ctx, "u2", "u1"); err != nil {
		t.Fatalf("redundant mark read: %v", err)
	}
	if got := unreadFor("u2"); got != 0 {
		t.Fatalf("expected unread to stay 0, got %d", got)
	}
}

func TestMessageOrderingEndToEnd(t *testing.T) {
	t.Parallel()

	e := newEngines(t)
	ctx := context.Background()
	e.signUp(t, "u1", "Alice", "alice")
	e.signUp(t, "u2", "Bob", "bob")
	e.befriend(t, "u1", "bob", "u2")

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		sender, recipient := "u1", "u2"
		if text == "two" || text == "four" {
			sender, recipient = "u2", "u1"
		}
		if _, err := e.messaging.SendMessage(ctx, sender, recipient, text); err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
	}

	messages, err := e.messaging.ListMessages(ctx, "u2", "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != len(texts) {
		t.Fatalf("expected %d messages, got %d", len(texts), len(messages))
	}
	for i, text := range texts {
		if messages[i].Text != text {
			t.Fatalf("position %d: expected %q, got %q", i, text, messages[i].Text)
		}
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Seq <= messages[i-1].Seq {
			t.Fatalf("expected strictly increasing seq, got %d then %d", messages[i-1].Seq, messages[i].Seq)
		}
	}
}

func TestEmptyPostRejectedEndToEnd(t *testing.T) {
	t.Parallel()

	e := newEngines(t)
	ctx := context.Background()
	e.signUp(t, "u1", "Alice", "alice")

	_, err := e.feed.CreatePost(ctx, "u1", "", "")
	if platformerrors.KindOf(err) != platformerrors.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFeedReflectsFriendshipChangesEndToEnd(t *testing.T) {
	t.Parallel()

	e := newEngines(t)
	ctx := context.Background()
	e.signUp(t, "u1", "Alice", "alice")
	e.signUp(t, "u2", "Bob", "bob")
	e.befriend(t, "u1", "bob", "u2")

	if _, err := e.feed.CreatePost(ctx, "u2", "from bob", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	posts, err := e.feed.FeedFor(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(posts) != 1 || posts[0].Text != "from bob" {
		t.Fatalf("expected bob's post in feed, got %v", posts)
	}

	if err := e.social.RemoveFriend(ctx, "u1", "u2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	posts, err = e.feed.FeedFor(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("feed after unfriend: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("expected empty feed after unfriend, got %v", posts)
	}
}

func TestPresenceLifecycleEndToEnd(t *testing.T) {
	t.Parallel()

	e := newEngines(t)
	ctx := context.Background()
	e.signUp(t, "u1", "Alice", "alice")
	e.signUp(t, "u2", "Bob", "bob")
	e.befriend(t, "u1", "bob", "u2")

	if err := e.presence.Connect(ctx, "u2"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	online, err := e.presence.OnlineFriends(ctx, "u1")
	if err != nil {
		t.Fatalf("online friends: %v", err)
	}
	if len(online) != 1 || online[0] != "u2" {
		t.Fatalf("expected [u2], got %v", online)
	}

	if err := e.presence.Disconnect(ctx, "u2"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	online, err = e.presence.OnlineFriends(ctx, "u1")
	if err != nil {
		t.Fatalf("online friends after disconnect: %v", err)
	}
	if len(online) != 0 {
		t.Fatalf("expected nobody online, got %v", online)
	}
}

func TestLiveFeedSubscriptionEndToEnd(t *testing.T) {
	t.Parallel()

	e := newEngines(t)
	ctx := context.Background()
	e.signUp(t, "u1", "Alice", "alice")
	e.signUp(t, "u2", "Bob", "bob")
	e.befriend(t, "u1", "bob", "u2")

	sub, err := e.broker.Subscribe(ctx,
		[]livequery.Topic{feed.PostsTopic(), social.FriendsTopic("u1")},
		func(ctx context.Context) (any, error) {
			return e.feed.FeedFor(ctx, "u1", 10)
		})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	initial := <-sub.Updates()
	if initial.Version != 1 {
		t.Fatalf("expected version 1, got %d", initial.Version)
	}
	if posts, ok := initial.Data.([]storage.Post); !ok || len(posts) != 0 {
		t.Fatalf("expected empty initial feed, got %v", initial.Data)
	}

	if _, err := e.feed.CreatePost(ctx, "u2", "from bob", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case next := <-sub.Updates():
		if next.Version < 2 {
			t.Fatalf("expected a later version, got %d", next.Version)
		}
		posts, ok := next.Data.([]storage.Post)
		if !ok || len(posts) != 1 || posts[0].Text != "from bob" {
			t.Fatalf("expected bob's post in snapshot, got %v", next.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for feed snapshot")
	}
}
