package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/storage"
)

type fakeNotificationStore struct {
	items []storage.Notification
}

func (f *fakeNotificationStore) PutNotification(_ context.Context, notification storage.Notification) error {
	f.items = append(f.items, notification)
	return nil
}

func (f *fakeNotificationStore) ListNotifications(_ context.Context, ownerUserID string, limit int) ([]storage.Notification, error) {
	var out []storage.Notification
	for _, item := range f.items {
		if item.OwnerUserID == ownerUserID {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeNotificationStore) MarkNotificationRead(_ context.Context, ownerUserID, notificationID string) error {
	for i, item := range f.items {
		if item.OwnerUserID == ownerUserID && item.NotificationID == notificationID {
			f.items[i].Read = true
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeNotificationStore) MarkAllNotificationsRead(_ context.Context, ownerUserID string) error {
	for i, item := range f.items {
		if item.OwnerUserID == ownerUserID {
			f.items[i].Read = true
		}
	}
	return nil
}

func newTestService(store *fakeNotificationStore) *Service {
	svc := NewService(store, nil, func() time.Time {
		return time.Date(2026, 4, 12, 10, 0, 0, 0, time.UTC)
	})
	seq := 0
	svc.newID = func() (string, error) {
		seq++
		return fmt.Sprintf("n%03d", seq), nil
	}
	return svc
}

func TestNotifyAppendsToQueue(t *testing.T) {
	t.Parallel()

	store := &fakeNotificationStore{}
	svc := newTestService(store)

	err := svc.Notify(context.Background(), Event{
		OwnerUserID:  "u1",
		Kind:         KindFriendRequest,
		SourceUserID: "u2",
		Payload:      map[string]string{"request_from": "u2"},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	items, err := svc.List(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one notification, got %d", len(items))
	}
	if items[0].Kind != string(KindFriendRequest) {
		t.Fatalf("unexpected kind %q", items[0].Kind)
	}
	payload, err := DecodePayload(items[0])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["request_from"] != "u2" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestNotifySkipsSelfEvents(t *testing.T) {
	t.Parallel()

	store := &fakeNotificationStore{}
	svc := newTestService(store)

	err := svc.Notify(context.Background(), Event{
		OwnerUserID:  "u1",
		Kind:         KindPostLiked,
		SourceUserID: "u1",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(store.items) != 0 {
		t.Fatalf("expected self event dropped, got %d items", len(store.items))
	}
}

func TestNotifyRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	svc := newTestService(&fakeNotificationStore{})
	err := svc.Notify(context.Background(), Event{
		OwnerUserID:  "u1",
		Kind:         Kind("BOGUS"),
		SourceUserID: "u2",
	})
	if err == nil {
		t.Fatal("expected unknown kind to be rejected")
	}
}

func TestMarkReadAndMarkAllRead(t *testing.T) {
	t.Parallel()

	store := &fakeNotificationStore{}
	svc := newTestService(store)
	for i := 0; i < 3; i++ {
		err := svc.Notify(context.Background(), Event{
			OwnerUserID:  "u1",
			Kind:         KindMessage,
			SourceUserID: "u2",
		})
		if err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}

	if err := svc.MarkRead(context.Background(), "u1", store.items[0].NotificationID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !store.items[0].Read {
		t.Fatal("expected first notification read")
	}
	if store.items[1].Read {
		t.Fatal("expected second notification unread")
	}

	if err := svc.MarkAllRead(context.Background(), "u1"); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	for i, item := range store.items {
		if !item.Read {
			t.Fatalf("expected notification %d read", i)
		}
	}
}

func TestMarkReadUnknownNotification(t *testing.T) {
	t.Parallel()

	svc := newTestService(&fakeNotificationStore{})
	err := svc.MarkRead(context.Background(), "u1", "ghost")
	if !errors.Is(err, platformerrors.New(platformerrors.CodeNotificationNotFound, "")) {
		t.Fatalf("expected notification not found, got %v", err)
	}
}

func TestListRespectsLimit(t *testing.T) {
	t.Parallel()

	store := &fakeNotificationStore{}
	svc := newTestService(store)
	for i := 0; i < 5; i++ {
		err := svc.Notify(context.Background(), Event{
			OwnerUserID:  "u1",
			Kind:         KindPostCommented,
			SourceUserID: "u2",
		})
		if err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}

	items, err := svc.List(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(items))
	}
}
