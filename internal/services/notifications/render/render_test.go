package render

import (
	"testing"

	"github.com/xbiplob/WeFriend/internal/services/notifications"
	"github.com/xbiplob/WeFriend/internal/storage"
)

func TestRenderEnglish(t *testing.T) {
	t.Parallel()

	renderer := NewRenderer("en-US")
	text, err := renderer.Render(storage.Notification{Kind: string(notifications.KindFriendRequest)}, "Ada")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if text != "Ada sent you a friend request" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestRenderPortuguese(t *testing.T) {
	t.Parallel()

	renderer := NewRenderer("pt-BR")
	text, err := renderer.Render(storage.Notification{Kind: string(notifications.KindPostLiked)}, "Ada")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if text != "Ada curtiu sua publicação" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestRenderFallsBackToEnglish(t *testing.T) {
	t.Parallel()

	renderer := NewRenderer("not-a-locale")
	text, err := renderer.Render(storage.Notification{Kind: string(notifications.KindMessage)}, "Ada")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if text != "Ada sent you a message" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestRenderUnknownKind(t *testing.T) {
	t.Parallel()

	renderer := NewRenderer("en-US")
	if _, err := renderer.Render(storage.Notification{Kind: "BOGUS"}, "Ada"); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}
