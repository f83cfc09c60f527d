// Package presence tracks online leases and demotes stale ones.
package presence

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/xbiplob/WeFriend/internal/livequery"
	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/storage"
)

// DefaultLeaseTTL is how long a heartbeat keeps a user online.
const DefaultLeaseTTL = 45 * time.Second

// DefaultSweepInterval is how often the sweeper demotes expired leases.
const DefaultSweepInterval = 15 * time.Second

// FriendLister resolves the confirmed friends of a user. The social engine
// satisfies it.
type FriendLister interface {
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// Service owns presence leases.
type Service struct {
	store   storage.PresenceStore
	friends FriendLister
	broker  *livequery.Broker
	clock   func() time.Time
	ttl     time.Duration
}

// NewService constructs the presence engine.
func NewService(store storage.PresenceStore, friends FriendLister, broker *livequery.Broker, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:   store,
		friends: friends,
		broker:  broker,
		clock:   clock,
		ttl:     DefaultLeaseTTL,
	}
}

// PresenceTopic names the live-query topic for one user's presence.
func PresenceTopic(userID string) livequery.Topic {
	return livequery.TopicFor("presence", userID)
}

// Connect marks a user online and starts their lease.
func (s *Service) Connect(ctx context.Context, userID string) error {
	return s.renew(ctx, userID, true)
}

// Heartbeat extends the lease of an already connected user.
func (s *Service) Heartbeat(ctx context.Context, userID string) error {
	return s.renew(ctx, userID, true)
}

// Disconnect marks a user offline immediately.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	return s.renew(ctx, userID, false)
}

func (s *Service) renew(ctx context.Context, userID string, online bool) error {
	if userID == "" {
		return platformerrors.New(platformerrors.CodeUnauthenticated, "user id is required")
	}
	now := s.clock().UTC()
	lease := storage.PresenceLease{
		UserID:    userID,
		Online:    online,
		ExpiresAt: now.Add(s.ttl),
		UpdatedAt: now,
	}
	if !online {
		lease.ExpiresAt = now
	}
	if err := s.store.PutPresenceLease(ctx, lease); err != nil {
		return platformerrors.Wrap(platformerrors.CodeStoreUnavailable, "store operation failed", err)
	}
	s.publish(userID)
	return nil
}

// IsOnline reports whether a user holds an unexpired online lease. A lease
// the sweeper has not demoted yet still reads as offline once past expiry.
func (s *Service) IsOnline(ctx context.Context, userID string) (bool, error) {
	lease, err := s.store.GetPresence(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, platformerrors.Wrap(platformerrors.CodeStoreUnavailable, "store operation failed", err)
	}
	return lease.Online && lease.ExpiresAt.After(s.clock().UTC()), nil
}

// OnlineFriends returns the subset of a user's friends currently online.
func (s *Service) OnlineFriends(ctx context.Context, userID string) ([]string, error) {
	friendIDs, err := s.friends.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	online := make([]string, 0, len(friendIDs))
	for _, friendID := range friendIDs {
		ok, err := s.IsOnline(ctx, friendID)
		if err != nil {
			return nil, err
		}
		if ok {
			online = append(online, friendID)
		}
	}
	return online, nil
}

// RunSweeper demotes expired leases until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.Printf("presence sweep: %v", err)
			}
		}
	}
}

// SweepOnce demotes every expired lease and returns the demoted user ids.
func (s *Service) SweepOnce(ctx context.Context) ([]string, error) {
	demoted, err := s.store.ExpirePresenceLeases(ctx, s.clock().UTC())
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.CodeStoreUnavailable, "store operation failed", err)
	}
	for _, userID := range demoted {
		s.publish(userID)
	}
	return demoted, nil
}

func (s *Service) publish(userID string) {
	if s.broker != nil {
		s.broker.Publish(PresenceTopic(userID))
	}
}
