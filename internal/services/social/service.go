// Package social owns friend requests, mirrored friend edges, and the
// read-side set algebra built on them.
package social

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/xbiplob/WeFriend/internal/livequery"
	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/services/notifications"
	"github.com/xbiplob/WeFriend/internal/storage"
)

// UsernameResolver maps a username to its holder. The profile engine
// satisfies it.
type UsernameResolver interface {
	ResolveUsername(ctx context.Context, username string) (string, error)
}

// Service owns the friend graph.
type Service struct {
	store    storage.SocialStore
	resolver UsernameResolver
	notifier notifications.Notifier
	broker   *livequery.Broker
	clock    func() time.Time
}

// NewService constructs the social graph engine.
func NewService(store storage.SocialStore, resolver UsernameResolver, notifier notifications.Notifier, broker *livequery.Broker, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, resolver: resolver, notifier: notifier, broker: broker, clock: clock}
}

// FriendsTopic names the live-query topic for one user's friend set.
func FriendsTopic(userID string) livequery.Topic {
	return livequery.TopicFor("friends", userID)
}

// RequestsTopic names the live-query topic for one user's incoming requests.
func RequestsTopic(userID string) livequery.Topic {
	return livequery.TopicFor("friend-requests", userID)
}

// SendFriendRequest creates a pending request from one user to the holder of
// a username. When the counterpart's opposite request lands between the
// validation read and the write, the request short-circuits into a mutual
// accept so two opposite pending requests never coexist.
func (s *Service) SendFriendRequest(ctx context.Context, fromUserID, toUsername string) error {
	toUserID, err := s.resolver.ResolveUsername(ctx, toUsername)
	if err != nil {
		return err
	}
	if toUserID == fromUserID {
		return platformerrors.New(platformerrors.CodeFriendRequestSelf, "cannot send a friend request to yourself")
	}

	if err := s.checkRequestPreconditions(ctx, fromUserID, toUserID); err != nil {
		return err
	}

	// Re-validate immediately before the write. A reciprocal request that
	// appeared since the first check wins the race; accept it instead of
	// writing a second opposite-direction request.
	if _, err := s.store.GetFriendRequest(ctx, fromUserID, toUserID); err == nil {
		return s.AcceptFriendRequest(ctx, fromUserID, toUserID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storeFailure(err)
	}

	request := storage.FriendRequest{
		ToUserID:   toUserID,
		FromUserID: fromUserID,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.store.PutFriendRequest(ctx, request); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return platformerrors.New(platformerrors.CodeFriendRequestDuplicate, "friend request already pending")
		}
		return storeFailure(err)
	}

	s.notify(ctx, notifications.Event{
		OwnerUserID:  toUserID,
		Kind:         notifications.KindFriendRequest,
		SourceUserID: fromUserID,
	})
	s.publish(RequestsTopic(toUserID))
	return nil
}

func (s *Service) checkRequestPreconditions(ctx context.Context, fromUserID, toUserID string) error {
	friends, err := s.AreFriends(ctx, fromUserID, toUserID)
	if err != nil {
		return err
	}
	if friends {
		return platformerrors.New(platformerrors.CodeAlreadyFriends, "users are already friends")
	}

	if _, err := s.store.GetFriendRequest(ctx, toUserID, fromUserID); err == nil {
		return platformerrors.New(platformerrors.CodeFriendRequestDuplicate, "friend request already pending")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storeFailure(err)
	}

	if _, err := s.store.GetFriendRequest(ctx, fromUserID, toUserID); err == nil {
		return platformerrors.New(platformerrors.CodeFriendRequestReciprocal, "counterpart already sent you a request")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storeFailure(err)
	}
	return nil
}

// AcceptFriendRequest deletes the pending request and writes both mirrored
// edges. Edges are written in canonical order so a partial write is
// repairable on the next read.
func (s *Service) AcceptFriendRequest(ctx context.Context, ownerUserID, fromUserID string) error {
	if _, err := s.store.GetFriendRequest(ctx, ownerUserID, fromUserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return platformerrors.New(platformerrors.CodeFriendRequestNotFound, "friend request does not exist")
		}
		return storeFailure(err)
	}
	if err := s.store.DeleteFriendRequest(ctx, ownerUserID, fromUserID); err != nil {
		return storeFailure(err)
	}

	now := s.clock().UTC()
	first, second := canonicalPair(ownerUserID, fromUserID)
	if err := s.store.PutFriendEdge(ctx, storage.FriendEdge{OwnerUserID: first, FriendUserID: second, CreatedAt: now}); err != nil {
		return storeFailure(err)
	}
	if err := s.store.PutFriendEdge(ctx, storage.FriendEdge{OwnerUserID: second, FriendUserID: first, CreatedAt: now}); err != nil {
		// The first edge is in place; the next AreFriends read repairs the
		// missing mirror.
		return storeFailure(err)
	}

	s.notify(ctx, notifications.Event{
		OwnerUserID:  fromUserID,
		Kind:         notifications.KindFriendAccepted,
		SourceUserID: ownerUserID,
	})
	s.publish(FriendsTopic(ownerUserID), FriendsTopic(fromUserID), RequestsTopic(ownerUserID))
	return nil
}

// RejectFriendRequest drops a pending request. Rejecting a request that does
// not exist is not an error.
func (s *Service) RejectFriendRequest(ctx context.Context, ownerUserID, fromUserID string) error {
	if err := s.store.DeleteFriendRequest(ctx, ownerUserID, fromUserID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storeFailure(err)
	}
	s.publish(RequestsTopic(ownerUserID))
	return nil
}

// RemoveFriend deletes both mirrored edges in canonical order.
func (s *Service) RemoveFriend(ctx context.Context, userID, friendUserID string) error {
	first, second := canonicalPair(userID, friendUserID)
	if err := s.store.DeleteFriendEdge(ctx, first, second); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storeFailure(err)
	}
	if err := s.store.DeleteFriendEdge(ctx, second, first); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storeFailure(err)
	}
	s.publish(FriendsTopic(userID), FriendsTopic(friendUserID))
	return nil
}

// AreFriends reports whether both mirrored edges agree that two users are
// friends. A lone edge is repaired in place: accept writes the canonical
// direction first and remove deletes it first, so which half survives tells
// us which operation was interrupted.
func (s *Service) AreFriends(ctx context.Context, userID, otherUserID string) (bool, error) {
	first, second := canonicalPair(userID, otherUserID)

	_, errFirst := s.store.GetFriendEdge(ctx, first, second)
	if errFirst != nil && !errors.Is(errFirst, storage.ErrNotFound) {
		return false, storeFailure(errFirst)
	}
	_, errSecond := s.store.GetFriendEdge(ctx, second, first)
	if errSecond != nil && !errors.Is(errSecond, storage.ErrNotFound) {
		return false, storeFailure(errSecond)
	}

	haveFirst := errFirst == nil
	haveSecond := errSecond == nil
	switch {
	case haveFirst && haveSecond:
		return true, nil
	case haveFirst && !haveSecond:
		// Interrupted accept: finish the mirror.
		edge := storage.FriendEdge{OwnerUserID: second, FriendUserID: first, CreatedAt: s.clock().UTC()}
		if err := s.store.PutFriendEdge(ctx, edge); err != nil {
			log.Printf("social: repair friend edge %s->%s: %v", second, first, err)
		}
		return true, nil
	case !haveFirst && haveSecond:
		// Interrupted remove: finish the delete.
		if err := s.store.DeleteFriendEdge(ctx, second, first); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("social: repair friend edge %s->%s: %v", second, first, err)
		}
		return false, nil
	default:
		return false, nil
	}
}

// FriendIDs returns the ids of a user's confirmed friends.
func (s *Service) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	edges, err := s.store.ListFriendEdges(ctx, userID)
	if err != nil {
		return nil, storeFailure(err)
	}
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.FriendUserID)
	}
	return ids, nil
}

// PendingRequests returns the requests waiting on a user's decision.
func (s *Service) PendingRequests(ctx context.Context, ownerUserID string) ([]storage.FriendRequest, error) {
	requests, err := s.store.ListFriendRequestsTo(ctx, ownerUserID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return requests, nil
}

// MutualFriends returns the intersection of two users' friend sets, sorted.
func (s *Service) MutualFriends(ctx context.Context, userID, otherUserID string) ([]string, error) {
	mine, err := s.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	theirs, err := s.FriendIDs(ctx, otherUserID)
	if err != nil {
		return nil, err
	}

	theirSet := make(map[string]struct{}, len(theirs))
	for _, friendID := range theirs {
		theirSet[friendID] = struct{}{}
	}
	var mutual []string
	for _, friendID := range mine {
		if _, ok := theirSet[friendID]; ok {
			mutual = append(mutual, friendID)
		}
	}
	sort.Strings(mutual)
	return mutual, nil
}

// Suggestions returns friends-of-friends ranked by how many friends the
// owner shares with each candidate. Self, existing friends, and users with a
// pending request in either direction are excluded.
func (s *Service) Suggestions(ctx context.Context, ownerUserID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	friendIDs, err := s.FriendIDs(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}

	excluded := map[string]struct{}{ownerUserID: {}}
	for _, friendID := range friendIDs {
		excluded[friendID] = struct{}{}
	}
	incoming, err := s.store.ListFriendRequestsTo(ctx, ownerUserID)
	if err != nil {
		return nil, storeFailure(err)
	}
	for _, request := range incoming {
		excluded[request.FromUserID] = struct{}{}
	}
	outgoing, err := s.store.ListFriendRequestsFrom(ctx, ownerUserID)
	if err != nil {
		return nil, storeFailure(err)
	}
	for _, request := range outgoing {
		excluded[request.ToUserID] = struct{}{}
	}

	counts := make(map[string]int)
	for _, friendID := range friendIDs {
		theirFriends, err := s.FriendIDs(ctx, friendID)
		if err != nil {
			return nil, err
		}
		for _, candidateID := range theirFriends {
			if _, skip := excluded[candidateID]; skip {
				continue
			}
			counts[candidateID]++
		}
	}

	candidates := make([]string, 0, len(counts))
	for candidateID := range counts {
		candidates = append(candidates, candidateID)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if counts[candidates[i]] != counts[candidates[j]] {
			return counts[candidates[i]] > counts[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// canonicalPair orders two user ids; the lower id owns the first mirrored
// edge written on accept and the first deleted on remove.
func canonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func (s *Service) notify(ctx context.Context, event notifications.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		log.Printf("social: notify %s: %v", event.Kind, err)
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
