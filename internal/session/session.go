// Package session adapts the external identity collaborator. The core never
// reads ambient "current user" state; every engine operation takes an
// explicit actor id that callers obtain through this package.
package session

import (
	"context"
	"strings"
	"sync"
)

// Identity is the narrow contract the identity collaborator fulfills.
type Identity interface {
	// CurrentUserID returns the signed-in user id, or "" when signed out.
	CurrentUserID(ctx context.Context) (string, error)
	// OnIdentityChange registers a callback fired once per sign-in or
	// sign-out transition. The returned func cancels the registration.
	OnIdentityChange(callback func(userID string)) (cancel func())
}

// Notifier tracks the current identity and fans out transitions. It backs
// both the JWT adapter and test doubles.
type Notifier struct {
	mu        sync.Mutex
	userID    string
	nextToken int
	callbacks map[int]func(string)
}

// NewNotifier creates a signed-out notifier.
func NewNotifier() *Notifier {
	return &Notifier{callbacks: make(map[int]func(string))}
}

// CurrentUserID returns the signed-in user id, or "" when signed out.
func (n *Notifier) CurrentUserID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.userID, nil
}

// OnIdentityChange registers a transition callback.
func (n *Notifier) OnIdentityChange(callback func(userID string)) (cancel func()) {
	n.mu.Lock()
	token := n.nextToken
	n.nextToken++
	n.callbacks[token] = callback
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.callbacks, token)
		n.mu.Unlock()
	}
}

// Announce records a sign-in ("u1") or sign-out ("") and fires callbacks.
// Announcing the current identity again is a no-op: callbacks fire once per
// transition.
func (n *Notifier) Announce(userID string) {
	userID = strings.TrimSpace(userID)
	n.mu.Lock()
	if n.userID == userID {
		n.mu.Unlock()
		return
	}
	n.userID = userID
	callbacks := make([]func(string), 0, len(n.callbacks))
	for _, callback := range n.callbacks {
		callbacks = append(callbacks, callback)
	}
	n.mu.Unlock()

	for _, callback := range callbacks {
		callback(userID)
	}
}

var _ Identity = (*Notifier)(nil)
