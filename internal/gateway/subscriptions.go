package gateway

import (
	"context"
	"log"
	"strings"

	"github.com/xbiplob/WeFriend/internal/livequery"
	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/services/feed"
	"github.com/xbiplob/WeFriend/internal/services/messaging"
	"github.com/xbiplob/WeFriend/internal/services/notifications"
	"github.com/xbiplob/WeFriend/internal/services/presence"
	"github.com/xbiplob/WeFriend/internal/services/social"
)

// liveSub pairs a broker subscription with the goroutine pumping its
// snapshots onto the connection.
type liveSub struct {
	target string
	sub    *livequery.Subscription
}

func (l *liveSub) cancel() {
	l.sub.Cancel()
}

// handleSubscribe attaches a live query. Supported targets:
//
//	feed                 the caller's feed (self plus current friends)
//	chats                the caller's chat list
//	friends              the caller's friend ids
//	requests             pending friend requests to the caller
//	notifications        the caller's notification queue
//	thread:<user_id>     the message log shared with one counterpart
//	presence:<user_id>   one user's online flag
//	post:<post_id>       one post with engagement counters
//
// Each target resolves to broker topics and a recompute function; the first
// snapshot is delivered before this frame's ack.
func (s *session) handleSubscribe(ctx context.Context, frame wsFrame) {
	var payload subscribePayload
	if !s.decode(frame, &payload) {
		return
	}
	target := strings.TrimSpace(payload.Target)
	if target == "" {
		s.writeError(frame.RequestID, platformerrors.New(platformerrors.CodeUnknown, "target is required"))
		return
	}

	s.subMu.Lock()
	_, exists := s.subs[target]
	s.subMu.Unlock()
	if exists {
		s.writeError(frame.RequestID, platformerrors.New(platformerrors.CodeUnknown, "already subscribed to target"))
		return
	}

	topics, recompute, err := s.resolveTarget(target)
	if err != nil {
		s.writeError(frame.RequestID, err)
		return
	}

	sub, err := s.deps.Broker.Subscribe(ctx, topics, recompute)
	if err != nil {
		s.writeError(frame.RequestID, err)
		return
	}

	live := &liveSub{target: target, sub: sub}
	s.subMu.Lock()
	s.subs[target] = live
	s.subMu.Unlock()

	s.writeResult("subscribe", frame.RequestID, map[string]string{"target": target})
	go s.pump(live)
}

func (s *session) handleUnsubscribe(frame wsFrame) {
	var payload subscribePayload
	if !s.decode(frame, &payload) {
		return
	}
	target := strings.TrimSpace(payload.Target)

	s.subMu.Lock()
	live, ok := s.subs[target]
	delete(s.subs, target)
	s.subMu.Unlock()
	if !ok {
		s.writeError(frame.RequestID, platformerrors.New(platformerrors.CodeUnknown, "not subscribed to target"))
		return
	}
	live.cancel()
	s.writeResult("unsubscribe", frame.RequestID, map[string]string{"target": target})
}

// pump forwards snapshots until the subscription's channel closes.
func (s *session) pump(live *liveSub) {
	for snapshot := range live.sub.Updates() {
		err := s.writeFrame(wsFrame{
			Type: "snapshot",
			Payload: mustJSON(snapshotPayload{
				Target:  live.target,
				Version: snapshot.Version,
				Data:    snapshot.Data,
			}),
		})
		if err != nil {
			log.Printf("gateway: snapshot write %s: %v", live.target, err)
			live.cancel()
			return
		}
	}
}

// resolveTarget maps a subscription target onto broker topics and the
// recompute that rebuilds its snapshot. Feed recomputes re-read the current
// friend set, so a friendship change between deliveries shows up in the next
// snapshot.
func (s *session) resolveTarget(target string) ([]livequery.Topic, livequery.RecomputeFunc, error) {
	switch {
	case target == "feed":
		topics := []livequery.Topic{feed.PostsTopic(), social.FriendsTopic(s.userID)}
		return topics, func(ctx context.Context) (any, error) {
			return s.deps.Feed.FeedFor(ctx, s.userID, 0)
		}, nil
	case target == "chats":
		topics := []livequery.Topic{messaging.ChatsTopic(s.userID)}
		return topics, func(ctx context.Context) (any, error) {
			return s.deps.Messaging.ListChats(ctx, s.userID)
		}, nil
	case target == "friends":
		topics := []livequery.Topic{social.FriendsTopic(s.userID)}
		return topics, func(ctx context.Context) (any, error) {
			return s.deps.Social.FriendIDs(ctx, s.userID)
		}, nil
	case target == "requests":
		topics := []livequery.Topic{social.RequestsTopic(s.userID)}
		return topics, func(ctx context.Context) (any, error) {
			return s.deps.Social.PendingRequests(ctx, s.userID)
		}, nil
	case target == "notifications":
		topics := []livequery.Topic{notifications.QueueTopic(s.userID)}
		return topics, func(ctx context.Context) (any, error) {
			return s.deps.Notifications.List(ctx, s.userID, 0)
		}, nil
	case strings.HasPrefix(target, "thread:"):
		otherUserID := strings.TrimPrefix(target, "thread:")
		threadID := messaging.ThreadIDFor(s.userID, otherUserID)
		topics := []livequery.Topic{messaging.ThreadTopic(threadID)}
		return topics, func(ctx context.Context) (any, error) {
			return s.deps.Messaging.ListMessages(ctx, s.userID, otherUserID)
		}, nil
	case strings.HasPrefix(target, "presence:"):
		watchedID := strings.TrimPrefix(target, "presence:")
		topics := []livequery.Topic{presence.PresenceTopic(watchedID)}
		return topics, func(ctx context.Context) (any, error) {
			online, err := s.deps.Presence.IsOnline(ctx, watchedID)
			if err != nil {
				return nil, err
			}
			return map[string]bool{"online": online}, nil
		}, nil
	case strings.HasPrefix(target, "post:"):
		postID := strings.TrimPrefix(target, "post:")
		topics := []livequery.Topic{feed.PostTopic(postID)}
		return topics, func(ctx context.Context) (any, error) {
			return s.deps.Feed.GetPost(ctx, postID)
		}, nil
	default:
		return nil, nil, platformerrors.New(platformerrors.CodeUnknown, "unsupported subscription target")
	}
}
