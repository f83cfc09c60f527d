package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/services/notifications/render"
	"github.com/xbiplob/WeFriend/internal/storage"
)

// session holds one connection's identity, its write lock, and its live
// subscriptions.
type session struct {
	userID string
	deps   Deps

	writeMu sync.Mutex
	encoder *json.Encoder

	subMu sync.Mutex
	subs  map[string]*liveSub
}

func newSession(userID string, encoder *json.Encoder, deps Deps) *session {
	return &session{
		userID:  userID,
		deps:    deps,
		encoder: encoder,
		subs:    make(map[string]*liveSub),
	}
}

func (s *session) writeFrame(frame wsFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.encoder.Encode(frame)
}

func (s *session) writeResult(frameType, requestID string, payload any) {
	err := s.writeFrame(wsFrame{
		Type:      frameType + ".ok",
		RequestID: requestID,
		Payload:   mustJSON(payload),
	})
	if err != nil {
		log.Printf("gateway: write result: %v", err)
	}
}

// writeError maps an engine error onto the wire envelope. Codes and the
// retryable bit come from the shared error taxonomy; anything unrecognized
// degrades to UNKNOWN.
func (s *session) writeError(requestID string, err error) {
	code := platformerrors.CodeUnknown
	message := "internal error"
	var domainErr *platformerrors.Error
	if platformerrors.AsError(err, &domainErr) {
		code = domainErr.Code
		message = domainErr.Message
	}
	writeErr := s.writeFrame(wsFrame{
		Type:      "error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{Error: wsError{
			Code:      string(code),
			Message:   message,
			Retryable: code.Kind().Retryable(),
		}}),
	})
	if writeErr != nil {
		log.Printf("gateway: write error frame: %v", writeErr)
	}
}

func (s *session) close() {
	s.subMu.Lock()
	subs := s.subs
	s.subs = make(map[string]*liveSub)
	s.subMu.Unlock()
	for _, sub := range subs {
		sub.cancel()
	}
}

// dispatch routes one frame to its handler.
func (s *session) dispatch(ctx context.Context, frame wsFrame) {
	switch frame.Type {
	case "ping":
		if err := s.deps.Presence.Heartbeat(ctx, s.userID); err != nil {
			log.Printf("gateway: heartbeat %s: %v", s.userID, err)
		}
		s.writeResult("ping", frame.RequestID, map[string]string{"status": "ok"})

	case "profile.ensure":
		var payload profileEnsurePayload
		if !s.decode(frame, &payload) {
			return
		}
		user, err := s.deps.Profiles.EnsureUser(ctx, s.userID, payload.DisplayName, payload.AvatarRef)
		s.reply(frame, profileViewOf(user), err)
	case "profile.update":
		var payload profileUpdatePayload
		if !s.decode(frame, &payload) {
			return
		}
		user, err := s.deps.Profiles.UpdateProfile(ctx, s.userID, payload.DisplayName, payload.AvatarRef)
		s.reply(frame, profileViewOf(user), err)
	case "profile.claim_username":
		var payload profileClaimPayload
		if !s.decode(frame, &payload) {
			return
		}
		err := s.deps.Profiles.ClaimUsername(ctx, s.userID, payload.Username)
		s.reply(frame, map[string]string{"username": payload.Username}, err)
	case "profile.get":
		var payload profileGetPayload
		if !s.decode(frame, &payload) {
			return
		}
		if payload.UserID == "" {
			payload.UserID = s.userID
		}
		user, err := s.deps.Profiles.GetProfile(ctx, payload.UserID)
		s.reply(frame, profileViewOf(user), err)
	case "profile.resolve":
		var payload profileResolvePayload
		if !s.decode(frame, &payload) {
			return
		}
		userID, err := s.deps.Profiles.ResolveUsername(ctx, payload.Username)
		s.reply(frame, map[string]string{"user_id": userID}, err)

	case "friends.request":
		var payload friendRequestPayload
		if !s.decode(frame, &payload) {
			return
		}
		err := s.deps.Social.SendFriendRequest(ctx, s.userID, payload.ToUsername)
		s.reply(frame, map[string]string{"status": "pending"}, err)
	case "friends.accept":
		var payload friendDecisionPayload
		if !s.decode(frame, &payload) {
			return
		}
		err := s.deps.Social.AcceptFriendRequest(ctx, s.userID, payload.FromUserID)
		s.reply(frame, map[string]string{"status": "accepted"}, err)
	case "friends.reject":
		var payload friendDecisionPayload
		if !s.decode(frame, &payload) {
			return
		}
		err := s.deps.Social.RejectFriendRequest(ctx, s.userID, payload.FromUserID)
		s.reply(frame, map[string]string{"status": "rejected"}, err)
	case "friends.remove":
		var payload friendRemovePayload
		if !s.decode(frame, &payload) {
			return
		}
		err := s.deps.Social.RemoveFriend(ctx, s.userID, payload.FriendUserID)
		s.reply(frame, map[string]string{"status": "removed"}, err)
	case "friends.list":
		friendIDs, err := s.deps.Social.FriendIDs(ctx, s.userID)
		s.reply(frame, friendIDs, err)
	case "friends.requests":
		requests, err := s.deps.Social.PendingRequests(ctx, s.userID)
		s.reply(frame, requests, err)
	case "friends.mutual":
		var payload friendQueryPayload
		if !s.decode(frame, &payload) {
			return
		}
		mutual, err := s.deps.Social.MutualFriends(ctx, s.userID, payload.OtherUserID)
		s.reply(frame, mutual, err)
	case "friends.suggestions":
		var payload suggestionsPayload
		if !s.decode(frame, &payload) {
			return
		}
		suggestions, err := s.deps.Social.Suggestions(ctx, s.userID, payload.Limit)
		s.reply(frame, suggestions, err)
	case "friends.online":
		online, err := s.deps.Presence.OnlineFriends(ctx, s.userID)
		s.reply(frame, online, err)

	case "chat.send":
		var payload chatSendPayload
		if !s.decode(frame, &payload) {
			return
		}
		message, err := s.deps.Messaging.SendMessage(ctx, s.userID, payload.RecipientID, payload.Text)
		s.reply(frame, message, err)
	case "chat.mark_read":
		var payload chatMarkReadPayload
		if !s.decode(frame, &payload) {
			return
		}
		err := s.deps.Messaging.MarkMessagesAsRead(ctx, s.userID, payload.OtherUserID)
		s.reply(frame, map[string]string{"status": "ok"}, err)
	case "chat.history":
		var payload chatHistoryPayload
		if !s.decode(frame, &payload) {
			return
		}
		messages, err := s.deps.Messaging.ListMessages(ctx, s.userID, payload.OtherUserID)
		s.reply(frame, messages, err)
	case "chat.list":
		chats, err := s.deps.Messaging.ListChats(ctx, s.userID)
		s.reply(frame, chats, err)

	case "feed.post":
		var payload feedPostPayload
		if !s.decode(frame, &payload) {
			return
		}
		post, err := s.deps.Feed.CreatePost(ctx, s.userID, payload.Text, payload.ImageRef)
		s.reply(frame, post, err)
	case "feed.like":
		var payload feedLikePayload
		if !s.decode(frame, &payload) {
			return
		}
		liked, err := s.deps.Feed.ToggleLike(ctx, s.userID, payload.PostID)
		s.reply(frame, map[string]bool{"liked": liked}, err)
	case "feed.comment":
		var payload feedCommentPayload
		if !s.decode(frame, &payload) {
			return
		}
		comment, err := s.deps.Feed.AddComment(ctx, s.userID, payload.PostID, payload.Text)
		s.reply(frame, comment, err)
	case "feed.delete_post":
		var payload feedDeletePostPayload
		if !s.decode(frame, &payload) {
			return
		}
		err := s.deps.Feed.DeletePost(ctx, s.userID, payload.PostID)
		s.reply(frame, map[string]string{"status": "deleted"}, err)
	case "feed.delete_comment":
		var payload feedDeleteCommentPayload
		if !s.decode(frame, &payload) {
			return
		}
		err := s.deps.Feed.DeleteComment(ctx, s.userID, payload.CommentID)
		s.reply(frame, map[string]string{"status": "deleted"}, err)
	case "feed.comments":
		var payload feedLikePayload
		if !s.decode(frame, &payload) {
			return
		}
		comments, err := s.deps.Feed.ListComments(ctx, payload.PostID)
		s.reply(frame, comments, err)
	case "feed.list":
		var payload feedListPayload
		if len(frame.Payload) > 0 && !s.decode(frame, &payload) {
			return
		}
		posts, err := s.deps.Feed.FeedFor(ctx, s.userID, payload.Limit)
		s.reply(frame, posts, err)

	case "notifications.list":
		var payload notificationsListPayload
		if len(frame.Payload) > 0 && !s.decode(frame, &payload) {
			return
		}
		items, err := s.deps.Notifications.List(ctx, s.userID, payload.Limit)
		if err != nil {
			s.writeError(frame.RequestID, err)
			return
		}
		s.reply(frame, s.notificationViews(ctx, items, payload.Locale), nil)
	case "notifications.mark_read":
		var payload notificationMarkReadPayload
		if !s.decode(frame, &payload) {
			return
		}
		err := s.deps.Notifications.MarkRead(ctx, s.userID, payload.NotificationID)
		s.reply(frame, map[string]string{"status": "ok"}, err)
	case "notifications.mark_all_read":
		err := s.deps.Notifications.MarkAllRead(ctx, s.userID)
		s.reply(frame, map[string]string{"status": "ok"}, err)

	case "subscribe":
		s.handleSubscribe(ctx, frame)
	case "unsubscribe":
		s.handleUnsubscribe(frame)

	default:
		s.writeError(frame.RequestID, platformerrors.New(platformerrors.CodeUnknown, "unsupported frame type"))
	}
}

func (s *session) decode(frame wsFrame, into any) bool {
	if err := json.Unmarshal(frame.Payload, into); err != nil {
		s.writeError(frame.RequestID, platformerrors.New(platformerrors.CodeUnknown, "invalid payload"))
		return false
	}
	return true
}

func (s *session) reply(frame wsFrame, payload any, err error) {
	if err != nil {
		s.writeError(frame.RequestID, err)
		return
	}
	s.writeResult(frame.Type, frame.RequestID, payload)
}

// notificationViews decorates stored notifications with localized display
// text. Name lookups are best-effort; a failed one falls back to the source
// user id.
func (s *session) notificationViews(ctx context.Context, items []storage.Notification, locale string) []notificationView {
	renderer := render.NewRenderer(locale)
	views := make([]notificationView, 0, len(items))
	for _, item := range items {
		name := item.SourceUserID
		if user, err := s.deps.Profiles.GetProfile(ctx, item.SourceUserID); err == nil && user.DisplayName != "" {
			name = user.DisplayName
		}
		text, err := renderer.Render(item, name)
		if err != nil {
			log.Printf("gateway: render notification %s: %v", item.NotificationID, err)
		}
		views = append(views, notificationView{
			NotificationID: item.NotificationID,
			Kind:           item.Kind,
			SourceUserID:   item.SourceUserID,
			Text:           text,
			Payload:        item.PayloadJSON,
			Read:           item.Read,
			CreatedAt:      item.CreatedAt,
		})
	}
	return views
}

func profileViewOf(user storage.User) profileView {
	return profileView{
		UserID:      user.UserID,
		DisplayName: user.DisplayName,
		AvatarRef:   user.AvatarRef,
		Username:    user.Username,
	}
}
