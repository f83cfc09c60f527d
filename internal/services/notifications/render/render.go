// Package render turns stored notifications into localized display strings.
package render

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/xbiplob/WeFriend/internal/services/notifications"
	"github.com/xbiplob/WeFriend/internal/storage"
)

// templates maps notification kinds to catalog keys. Each template takes the
// source user's display name as its single argument.
var templates = map[notifications.Kind]string{
	notifications.KindFriendRequest:  "notification.friend_request",
	notifications.KindFriendAccepted: "notification.friend_accepted",
	notifications.KindMessage:        "notification.message",
	notifications.KindPostLiked:      "notification.post_liked",
	notifications.KindPostCommented:  "notification.post_commented",
	notifications.KindMention:        "notification.mention",
}

func init() {
	for tag, catalog := range map[language.Tag]map[string]string{
		language.AmericanEnglish: {
			"notification.friend_request":  "%s sent you a friend request",
			"notification.friend_accepted": "%s accepted your friend request",
			"notification.message":         "%s sent you a message",
			"notification.post_liked":      "%s liked your post",
			"notification.post_commented":  "%s commented on your post",
			"notification.mention":         "%s mentioned you in a comment",
		},
		language.BrazilianPortuguese: {
			"notification.friend_request":  "%s enviou um pedido de amizade",
			"notification.friend_accepted": "%s aceitou seu pedido de amizade",
			"notification.message":         "%s enviou uma mensagem",
			"notification.post_liked":      "%s curtiu sua publicação",
			"notification.post_commented":  "%s comentou na sua publicação",
			"notification.mention":         "%s mencionou você em um comentário",
		},
	} {
		for key, value := range catalog {
			message.SetString(tag, key, value)
		}
	}
}

// Renderer formats notification text for one locale.
type Renderer struct {
	printer *message.Printer
}

// NewRenderer creates a renderer for the given locale, falling back to
// en-US for locales without a catalog.
func NewRenderer(locale string) *Renderer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	return &Renderer{printer: message.NewPrinter(tag)}
}

// Render formats one notification using the source user's display name.
func (r *Renderer) Render(notification storage.Notification, sourceDisplayName string) (string, error) {
	key, ok := templates[notifications.Kind(notification.Kind)]
	if !ok {
		return "", fmt.Errorf("unknown notification kind %q", notification.Kind)
	}
	return r.printer.Sprintf(key, sourceDisplayName), nil
}
