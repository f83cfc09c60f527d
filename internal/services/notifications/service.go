// Package notifications owns the per-recipient notification queues. Other
// engines never write notification storage directly; they call Notify.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xbiplob/WeFriend/internal/livequery"
	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/platform/id"
	"github.com/xbiplob/WeFriend/internal/storage"
)

// Kind identifies one notification shape. The set is closed; unknown kinds
// are rejected at enqueue time.
type Kind string

const (
	KindFriendRequest  Kind = "FRIEND_REQUEST"
	KindFriendAccepted Kind = "FRIEND_ACCEPTED"
	KindMessage        Kind = "MESSAGE"
	KindPostLiked      Kind = "POST_LIKED"
	KindPostCommented  Kind = "POST_COMMENTED"
	KindMention        Kind = "MENTION"
)

func (k Kind) valid() bool {
	switch k {
	case KindFriendRequest, KindFriendAccepted, KindMessage, KindPostLiked, KindPostCommented, KindMention:
		return true
	}
	return false
}

// DefaultListLimit caps queue reads when the caller does not set one.
const DefaultListLimit = 50

// Event is what producing engines hand to Notify.
type Event struct {
	OwnerUserID  string
	Kind         Kind
	SourceUserID string
	// Payload carries kind-specific fields (thread id, post id, preview text).
	Payload map[string]string
}

// Notifier is the narrow contract producing engines depend on.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Service owns the notification queues.
type Service struct {
	store  storage.NotificationStore
	broker *livequery.Broker
	clock  func() time.Time
	newID  func() (string, error)
}

// NewService constructs the notification engine.
func NewService(store storage.NotificationStore, broker *livequery.Broker, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, broker: broker, clock: clock, newID: id.NewID}
}

var _ Notifier = (*Service)(nil)

// QueueTopic names the live-query topic for one user's notification queue.
func QueueTopic(ownerUserID string) livequery.Topic {
	return livequery.TopicFor("notifications", ownerUserID)
}

// Notify appends one notification to the recipient's queue. Self-directed
// events are dropped; producing an event about your own action never
// notifies you.
func (s *Service) Notify(ctx context.Context, event Event) error {
	if !event.Kind.valid() {
		return fmt.Errorf("unknown notification kind %q", event.Kind)
	}
	if event.OwnerUserID == "" || event.SourceUserID == "" {
		return fmt.Errorf("notification requires owner and source user ids")
	}
	if event.OwnerUserID == event.SourceUserID {
		return nil
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}
	notificationID, err := s.newID()
	if err != nil {
		return fmt.Errorf("new notification id: %w", err)
	}
	record := storage.Notification{
		NotificationID: notificationID,
		OwnerUserID:    event.OwnerUserID,
		Kind:           string(event.Kind),
		SourceUserID:   event.SourceUserID,
		PayloadJSON:    string(payload),
		CreatedAt:      s.clock().UTC(),
	}
	if err := s.store.PutNotification(ctx, record); err != nil {
		return storeFailure(err)
	}
	s.publish(event.OwnerUserID)
	return nil
}

// List returns the newest notifications for a user.
func (s *Service) List(ctx context.Context, ownerUserID string, limit int) ([]storage.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	items, err := s.store.ListNotifications(ctx, ownerUserID, limit)
	if err != nil {
		return nil, storeFailure(err)
	}
	return items, nil
}

// MarkRead flags one notification as read.
func (s *Service) MarkRead(ctx context.Context, ownerUserID, notificationID string) error {
	if err := s.store.MarkNotificationRead(ctx, ownerUserID, notificationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return platformerrors.New(platformerrors.CodeNotificationNotFound, "notification does not exist")
		}
		return storeFailure(err)
	}
	s.publish(ownerUserID)
	return nil
}

// MarkAllRead flags every notification for a user as read.
func (s *Service) MarkAllRead(ctx context.Context, ownerUserID string) error {
	if err := s.store.MarkAllNotificationsRead(ctx, ownerUserID); err != nil {
		return storeFailure(err)
	}
	s.publish(ownerUserID)
	return nil
}

// DecodePayload unpacks a stored payload back into its field map.
func DecodePayload(notification storage.Notification) (map[string]string, error) {
	if notification.PayloadJSON == "" {
		return map[string]string{}, nil
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(notification.PayloadJSON), &payload); err != nil {
		return nil, fmt.Errorf("decode notification payload: %w", err)
	}
	return payload, nil
}

func (s *Service) publish(ownerUserID string) {
	if s.broker != nil {
		s.broker.Publish(QueueTopic(ownerUserID))
	}
}

func storeFailure(err error) error {
	return platformerrors.Wrap(platformerrors.CodeStoreUnavailable, "store operation failed", err)
}
