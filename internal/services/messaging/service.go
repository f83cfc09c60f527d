// Package messaging owns direct-message threads, message logs, and the
// per-user chat summaries mirrored from them.
package messaging

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xbiplob/WeFriend/internal/livequery"
	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/platform/id"
	"github.com/xbiplob/WeFriend/internal/services/notifications"
	"github.com/xbiplob/WeFriend/internal/storage"
)

// previewLimit bounds the summary text mirrored into chat lists.
const previewLimit = 120

// FriendChecker reports whether two users are friends. The social engine
// satisfies it.
type FriendChecker interface {
	AreFriends(ctx context.Context, userID, otherUserID string) (bool, error)
}

// Service owns messaging.
type Service struct {
	store    storage.MessagingStore
	friends  FriendChecker
	notifier notifications.Notifier
	broker   *livequery.Broker
	clock    func() time.Time
	newID    func() (string, error)
}

// NewService constructs the messaging engine.
func NewService(store storage.MessagingStore, friends FriendChecker, notifier notifications.Notifier, broker *livequery.Broker, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:    store,
		friends:  friends,
		notifier: notifier,
		broker:   broker,
		clock:    clock,
		newID:    id.NewID,
	}
}

// ThreadIDFor derives the thread id for a participant pair. The derivation
// is order-independent so both sides address the same thread without a
// lookup.
func ThreadIDFor(userID, otherUserID string) string {
	if otherUserID < userID {
		userID, otherUserID = otherUserID, userID
	}
	return "dm:" + userID + ":" + otherUserID
}

// ThreadTopic names the live-query topic for one thread's message log.
func ThreadTopic(threadID string) livequery.Topic {
	return livequery.TopicFor("threads", threadID)
}

// ChatsTopic names the live-query topic for one user's chat list.
func ChatsTopic(ownerUserID string) livequery.Topic {
	return livequery.TopicFor("chats", ownerUserID)
}

// SendMessage appends a message to the pair's thread, refreshes both chat
// summaries, and bumps only the recipient's unread counter. The writes are
// independent; readers tolerate and repair transient mismatches.
func (s *Service) SendMessage(ctx context.Context, senderID, recipientID, text string) (storage.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return storage.Message{}, platformerrors.New(platformerrors.CodeMessageEmpty, "message text is required")
	}
	friends, err := s.friends.AreFriends(ctx, senderID, recipientID)
	if err != nil {
		return storage.Message{}, err
	}
	if !friends {
		return storage.Message{}, platformerrors.New(platformerrors.CodeNotFriends, "users are not friends")
	}

	messageID, err := s.newID()
	if err != nil {
		return storage.Message{}, storeFailure(err)
	}
	now := s.clock().UTC()
	threadID := ThreadIDFor(senderID, recipientID)

	message, err := s.store.AppendMessage(ctx, storage.Message{
		MessageID:   messageID,
		ThreadID:    threadID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        text,
		CreatedAt:   now,
	})
	if err != nil {
		return storage.Message{}, storeFailure(err)
	}

	preview := text
	if utf8.RuneCountInString(preview) > previewLimit {
		runes := []rune(preview)
		preview = string(runes[:previewLimit])
	}
	userA, userB := senderID, recipientID
	if userB < userA {
		userA, userB = userB, userA
	}
	if err := s.store.PutChatThread(ctx, storage.ChatThread{
		ThreadID:        threadID,
		UserA:           userA,
		UserB:           userB,
		LastMessageText: preview,
		LastMessageAt:   now,
		UpdatedAt:       now,
	}); err != nil {
		log.Printf("messaging: update thread %s: %v", threadID, err)
	}

	s.refreshSummary(ctx, senderID, recipientID, threadID, preview, now)
	s.refreshSummary(ctx, recipientID, senderID, threadID, preview, now)
	if err := s.store.AdjustChatUnread(ctx, recipientID, threadID, 1); err != nil {
		// The unread mirror lags; the next summary read recounts and repairs.
		log.Printf("messaging: bump unread %s/%s: %v", recipientID, threadID, err)
	}

	s.notify(ctx, notifications.Event{
		OwnerUserID:  recipientID,
		Kind:         notifications.KindMessage,
		SourceUserID: senderID,
		Payload:      map[string]string{"thread_id": threadID, "preview": preview},
	})
	s.publish(ThreadTopic(threadID), ChatsTopic(senderID), ChatsTopic(recipientID))
	return message, nil
}

// refreshSummary upserts one user's chat summary row. The upsert never
// touches the unread counter; that column moves only through AdjustChatUnread
// and SetChatUnread.
func (s *Service) refreshSummary(ctx context.Context, ownerID, otherID, threadID, preview string, now time.Time) {
	err := s.store.PutChatSummary(ctx, storage.ChatSummary{
		OwnerUserID:     ownerID,
		ThreadID:        threadID,
		OtherUserID:     otherID,
		LastMessageText: preview,
		LastMessageAt:   now,
		UpdatedAt:       now,
	})
	if err != nil {
		log.Printf("messaging: refresh summary %s/%s: %v", ownerID, threadID, err)
	}
}

// MarkMessagesAsRead flags every unread message addressed to the reader and
// zeroes the reader's unread mirror. Safe to call redundantly.
func (s *Service) MarkMessagesAsRead(ctx context.Context, readerID, otherUserID string) error {
	threadID := ThreadIDFor(readerID, otherUserID)
	if err := s.store.MarkThreadMessagesRead(ctx, threadID, readerID); err != nil {
		return storeFailure(err)
	}
	if err := s.store.SetChatUnread(ctx, readerID, threadID, 0); err != nil {
		return storeFailure(err)
	}
	s.publish(ThreadTopic(threadID), ChatsTopic(readerID))
	return nil
}

// ListMessages returns a thread's messages ordered by creation time, ties
// broken by append sequence.
func (s *Service) ListMessages(ctx context.Context, userID, otherUserID string) ([]storage.Message, error) {
	threadID := ThreadIDFor(userID, otherUserID)
	messages, err := s.store.ListMessages(ctx, threadID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return messages, nil
}

// ListChats returns a user's chat summaries. Each summary's unread counter
// is checked against the message log and repaired in place when the mirror
// drifted.
func (s *Service) ListChats(ctx context.Context, ownerUserID string) ([]storage.ChatSummary, error) {
	summaries, err := s.store.ListChatSummaries(ctx, ownerUserID)
	if err != nil {
		return nil, storeFailure(err)
	}
	for i := range summaries {
		summaries[i] = s.reconcileUnread(ctx, summaries[i])
	}
	return summaries, nil
}

func (s *Service) reconcileUnread(ctx context.Context, summary storage.ChatSummary) storage.ChatSummary {
	actual, err := s.store.CountUnreadMessages(ctx, summary.ThreadID, summary.OwnerUserID)
	if err != nil {
		log.Printf("messaging: count unread %s/%s: %v", summary.OwnerUserID, summary.ThreadID, err)
		return summary
	}
	if actual == summary.UnreadCount {
		return summary
	}
	if err := s.store.SetChatUnread(ctx, summary.OwnerUserID, summary.ThreadID, actual); err != nil {
		log.Printf("messaging: repair unread %s/%s: %v", summary.OwnerUserID, summary.ThreadID, err)
	}
	summary.UnreadCount = actual
	return summary
}

func (s *Service) notify(ctx context.Context, event notifications.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		log.Printf("messaging: notify %s: %v", event.Kind, err)
	}
}

func (s *Service) publish(topics ...livequery.Topic) {
	if s.broker != nil {
		s.broker.Publish(topics...)
	}
}

func storeFailure(err error) error {
	return platformerrors.Wrap(platformerrors.CodeStoreUnavailable, "store operation failed", err)
}
