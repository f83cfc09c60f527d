// Package gateway exposes the engines over a WebSocket endpoint. Clients
// send JSON frames (type, request_id, payload); command frames dispatch to
// one engine, subscribe frames attach live queries, and every failure is
// reported through a structured error envelope.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/websocket"

	"github.com/xbiplob/WeFriend/internal/livequery"
	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/storage"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

// Authorizer validates a bearer token and returns the subject user id.
type Authorizer interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// ProfileAPI is what the gateway needs from the profile engine.
type ProfileAPI interface {
	EnsureUser(ctx context.Context, userID, displayName, avatarRef string) (storage.User, error)
	UpdateProfile(ctx context.Context, userID, displayName, avatarRef string) (storage.User, error)
	ClaimUsername(ctx context.Context, userID, username string) error
	GetProfile(ctx context.Context, userID string) (storage.User, error)
	ResolveUsername(ctx context.Context, username string) (string, error)
}

// PresenceAPI is what the gateway needs from the presence engine.
type PresenceAPI interface {
	Connect(ctx context.Context, userID string) error
	Heartbeat(ctx context.Context, userID string) error
	Disconnect(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	OnlineFriends(ctx context.Context, userID string) ([]string, error)
}

// SocialAPI is what the gateway needs from the social graph engine.
type SocialAPI interface {
	SendFriendRequest(ctx context.Context, fromUserID, toUsername string) error
	AcceptFriendRequest(ctx context.Context, ownerUserID, fromUserID string) error
	RejectFriendRequest(ctx context.Context, ownerUserID, fromUserID string) error
	RemoveFriend(ctx context.Context, userID, friendUserID string) error
	FriendIDs(ctx context.Context, userID string) ([]string, error)
	PendingRequests(ctx context.Context, ownerUserID string) ([]storage.FriendRequest, error)
	MutualFriends(ctx context.Context, userID, otherUserID string) ([]string, error)
	Suggestions(ctx context.Context, ownerUserID string, limit int) ([]string, error)
}

// MessagingAPI is what the gateway needs from the messaging engine.
type MessagingAPI interface {
	SendMessage(ctx context.Context, senderID, recipientID, text string) (storage.Message, error)
	MarkMessagesAsRead(ctx context.Context, readerID, otherUserID string) error
	ListMessages(ctx context.Context, userID, otherUserID string) ([]storage.Message, error)
	ListChats(ctx context.Context, ownerUserID string) ([]storage.ChatSummary, error)
}

// FeedAPI is what the gateway needs from the feed engine.
type FeedAPI interface {
	CreatePost(ctx context.Context, authorID, text, imageRef string) (storage.Post, error)
	ToggleLike(ctx context.Context, userID, postID string) (bool, error)
	AddComment(ctx context.Context, authorID, postID, text string) (storage.Comment, error)
	DeletePost(ctx context.Context, callerID, postID string) error
	DeleteComment(ctx context.Context, callerID, commentID string) error
	GetPost(ctx context.Context, postID string) (storage.Post, error)
	ListComments(ctx context.Context, postID string) ([]storage.Comment, error)
	FeedFor(ctx context.Context, userID string, limit int) ([]storage.Post, error)
}

// NotificationAPI is what the gateway needs from the notification engine.
type NotificationAPI interface {
	List(ctx context.Context, ownerUserID string, limit int) ([]storage.Notification, error)
	MarkRead(ctx context.Context, ownerUserID, notificationID string) error
	MarkAllRead(ctx context.Context, ownerUserID string) error
}

// Deps wires the gateway to the engines behind it.
type Deps struct {
	Authorizer    Authorizer
	Profiles      ProfileAPI
	Presence      PresenceAPI
	Social        SocialAPI
	Messaging     MessagingAPI
	Feed          FeedAPI
	Notifications NotificationAPI
	Broker        *livequery.Broker
}

// NewHandler creates the HTTP handler serving the gateway endpoint at /ws
// and a health probe at /up.
func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleConn(conn, deps)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		token := bearerToken(r)
		if token == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		userID, err := deps.Authorizer.Authenticate(r.Context(), token)
		if err != nil || strings.TrimSpace(userID) == "" {
			if err != nil {
				log.Printf("gateway: websocket unauthorized: %v", err)
			}
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), wsUserIDContextKey{}, strings.TrimSpace(userID))
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})

	return mux
}

type wsUserIDContextKey struct{}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func handleConn(conn *websocket.Conn, deps Deps) {
	defer func() {
		_ = conn.Close()
	}()

	userID := ""
	if request := conn.Request(); request != nil {
		if resolved, ok := request.Context().Value(wsUserIDContextKey{}).(string); ok {
			userID = resolved
		}
	}
	if userID == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newSession(userID, json.NewEncoder(conn), deps)
	defer session.close()

	// The connection lifecycle drives presence.
	if err := deps.Presence.Connect(ctx, userID); err != nil {
		log.Printf("gateway: presence connect %s: %v", userID, err)
	}
	defer func() {
		if err := deps.Presence.Disconnect(context.Background(), userID); err != nil {
			log.Printf("gateway: presence disconnect %s: %v", userID, err)
		}
	}()

	tracer := otel.Tracer("gateway")
	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			session.writeError("", platformerrors.New(platformerrors.CodeUnknown, "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			session.writeError(frame.RequestID, platformerrors.New(platformerrors.CodeUnknown, "payload too large"))
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			session.writeError(frame.RequestID, platformerrors.New(platformerrors.CodeUnknown, "rate limit exceeded"))
			return
		}

		frameCtx, span := tracer.Start(ctx, "gateway.frame")
		span.SetAttributes(attribute.String("frame.type", frame.Type))
		session.dispatch(frameCtx, frame)
		span.End()
	}
}
