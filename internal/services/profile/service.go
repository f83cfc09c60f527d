// Package profile owns account profiles and the username uniqueness index.
package profile

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/xbiplob/WeFriend/internal/livequery"
	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/storage"
)

// Username policy: 3-32 chars, letter first, then letters, digits, or ._-
// Usernames are case-sensitive; no canonicalization happens here.
var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]{2,31}$`)

// Service orchestrates profile reads and writes.
type Service struct {
	store  storage.UserStore
	broker *livequery.Broker
	clock  func() time.Time

	// claimMu serializes username claims; the username index is the one
	// path that requires true mutual exclusion.
	claimMu sync.Mutex
}

// NewService constructs the profile engine.
func NewService(store storage.UserStore, broker *livequery.Broker, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, broker: broker, clock: clock}
}

// UserTopic names the live-query topic for one profile.
func UserTopic(userID string) livequery.Topic {
	return livequery.TopicFor("users", userID)
}

// EnsureUser creates the profile on first sign-in and returns the stored
// record. An existing profile is returned untouched.
func (s *Service) EnsureUser(ctx context.Context, userID, displayName, avatarRef string) (storage.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.User{}, platformerrors.New(platformerrors.CodeUnauthenticated, "user id is required")
	}

	existing, err := s.store.GetUser(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, storeFailure(err)
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return storage.User{}, platformerrors.New(platformerrors.CodeProfileDisplayNameEmpty, "display name is required")
	}
	now := s.nowUTC()
	user := storage.User{
		UserID:      userID,
		DisplayName: displayName,
		AvatarRef:   strings.TrimSpace(avatarRef),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.PutUser(ctx, user); err != nil {
		return storage.User{}, storeFailure(err)
	}
	s.publish(userID)
	return user, nil
}

// UpdateProfile replaces the mutable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID, displayName, avatarRef string) (storage.User, error) {
	userID = strings.TrimSpace(userID)
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return storage.User{}, platformerrors.New(platformerrors.CodeProfileDisplayNameEmpty, "display name is required")
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.User{}, platformerrors.New(platformerrors.CodeUserNotFound, "user does not exist")
		}
		return storage.User{}, storeFailure(err)
	}

	user.DisplayName = displayName
	user.AvatarRef = strings.TrimSpace(avatarRef)
	user.UpdatedAt = s.nowUTC()
	if err := s.store.PutUser(ctx, user); err != nil {
		return storage.User{}, storeFailure(err)
	}
	s.publish(userID)
	return user, nil
}

// ClaimUsername assigns a globally unique username to a user, at most once.
func (s *Service) ClaimUsername(ctx context.Context, userID, username string) error {
	userID = strings.TrimSpace(userID)
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return platformerrors.WithMetadata(
			platformerrors.CodeUsernameInvalid,
			"username does not match the required format",
			map[string]string{"username": username},
		)
	}

	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return platformerrors.New(platformerrors.CodeUserNotFound, "user does not exist")
		}
		return storeFailure(err)
	}
	if user.Username != "" {
		return platformerrors.WithMetadata(
			platformerrors.CodeUsernameAlreadyClaimed,
			"user already claimed a username",
			map[string]string{"username": user.Username},
		)
	}

	if err := s.store.ClaimUsername(ctx, username, userID); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return platformerrors.WithMetadata(
				platformerrors.CodeUsernameTaken,
				"username is taken",
				map[string]string{"username": username},
			)
		}
		return storeFailure(err)
	}
	if err := s.store.SetUserUsername(ctx, userID, username); err != nil {
		// The index row is in place; the profile mirror converges on the next
		// claim check, which reads the index through ResolveUsername.
		return storeFailure(err)
	}
	s.publish(userID)
	return nil
}

// GetProfile returns one profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (storage.User, error) {
	user, err := s.store.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.User{}, platformerrors.New(platformerrors.CodeUserNotFound, "user does not exist")
		}
		return storage.User{}, storeFailure(err)
	}
	return user, nil
}

// ResolveUsername maps a username to its holder's user id.
func (s *Service) ResolveUsername(ctx context.Context, username string) (string, error) {
	userID, err := s.store.ResolveUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", platformerrors.WithMetadata(
				platformerrors.CodeUserNotFound,
				"no user holds that username",
				map[string]string{"username": username},
			)
		}
		return "", storeFailure(err)
	}
	return userID, nil
}

func (s *Service) publish(userID string) {
	if s.broker != nil {
		s.broker.Publish(UserTopic(userID))
	}
}

func (s *Service) nowUTC() time.Time {
	return s.clock().UTC()
}

func storeFailure(err error) error {
	return platformerrors.Wrap(platformerrors.CodeStoreUnavailable, "store operation failed", err)
}
