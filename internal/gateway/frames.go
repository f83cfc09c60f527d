package gateway

import (
	"encoding/json"
	"time"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type profileEnsurePayload struct {
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

type profileUpdatePayload struct {
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

type profileClaimPayload struct {
	Username string `json:"username"`
}

type profileGetPayload struct {
	UserID string `json:"user_id"`
}

type profileResolvePayload struct {
	Username string `json:"username"`
}

type profileView struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
	Username    string `json:"username,omitempty"`
}

type friendRequestPayload struct {
	ToUsername string `json:"to_username"`
}

type friendDecisionPayload struct {
	FromUserID string `json:"from_user_id"`
}

type friendRemovePayload struct {
	FriendUserID string `json:"friend_user_id"`
}

type friendQueryPayload struct {
	OtherUserID string `json:"other_user_id"`
}

type suggestionsPayload struct {
	Limit int `json:"limit,omitempty"`
}

type chatSendPayload struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
}

type chatMarkReadPayload struct {
	OtherUserID string `json:"other_user_id"`
}

type chatHistoryPayload struct {
	OtherUserID string `json:"other_user_id"`
}

type feedPostPayload struct {
	Text     string `json:"text,omitempty"`
	ImageRef string `json:"image_ref,omitempty"`
}

type feedLikePayload struct {
	PostID string `json:"post_id"`
}

type feedCommentPayload struct {
	PostID string `json:"post_id"`
	Text   string `json:"text"`
}

type feedDeletePostPayload struct {
	PostID string `json:"post_id"`
}

type feedDeleteCommentPayload struct {
	CommentID string `json:"comment_id"`
}

type feedListPayload struct {
	Limit int `json:"limit,omitempty"`
}

type notificationsListPayload struct {
	Limit  int    `json:"limit,omitempty"`
	Locale string `json:"locale,omitempty"`
}

type notificationView struct {
	NotificationID string    `json:"notification_id"`
	Kind           string    `json:"kind"`
	SourceUserID   string    `json:"source_user_id"`
	Text           string    `json:"text,omitempty"`
	Payload        string    `json:"payload,omitempty"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

type notificationMarkReadPayload struct {
	NotificationID string `json:"notification_id"`
}

type subscribePayload struct {
	Target string `json:"target"`
}

type snapshotPayload struct {
	Target  string `json:"target"`
	Version int64  `json:"version"`
	Data    any    `json:"data"`
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
