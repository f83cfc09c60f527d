package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xbiplob/WeFriend/internal/storage"
)

// PutFriendEdge upserts one directed friendship row.
func (s *Store) PutFriendEdge(ctx context.Context, edge storage.FriendEdge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	ownerUserID := strings.TrimSpace(edge.OwnerUserID)
	friendUserID := strings.TrimSpace(edge.FriendUserID)
	if ownerUserID == "" || friendUserID == "" {
		return fmt.Errorf("owner and friend user ids are required")
	}
	if ownerUserID == friendUserID {
		return fmt.Errorf("friend user id must differ from owner user id")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO friend_edges (owner_user_id, friend_user_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(owner_user_id, friend_user_id) DO NOTHING`,
		ownerUserID,
		friendUserID,
		toMillis(edge.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put friend edge: %w", err)
	}
	return nil
}

// GetFriendEdge returns one directed friendship row.
func (s *Store) GetFriendEdge(ctx context.Context, ownerUserID, friendUserID string) (storage.FriendEdge, error) {
	if err := ctx.Err(); err != nil {
		return storage.FriendEdge{}, err
	}
	if err := s.ready(); err != nil {
		return storage.FriendEdge{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT owner_user_id, friend_user_id, created_at
		 FROM friend_edges WHERE owner_user_id = ? AND friend_user_id = ?`,
		strings.TrimSpace(ownerUserID),
		strings.TrimSpace(friendUserID),
	)
	var edge storage.FriendEdge
	var createdAt int64
	if err := row.Scan(&edge.OwnerUserID, &edge.FriendUserID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.FriendEdge{}, storage.ErrNotFound
		}
		return storage.FriendEdge{}, fmt.Errorf("get friend edge: %w", err)
	}
	edge.CreatedAt = fromMillis(createdAt)
	return edge, nil
}

// DeleteFriendEdge removes one directed friendship row. Deleting a missing
// edge is not an error.
func (s *Store) DeleteFriendEdge(ctx context.Context, ownerUserID, friendUserID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM friend_edges WHERE owner_user_id = ? AND friend_user_id = ?`,
		strings.TrimSpace(ownerUserID),
		strings.TrimSpace(friendUserID),
	)
	if err != nil {
		return fmt.Errorf("delete friend edge: %w", err)
	}
	return nil
}

// ListFriendEdges returns every directed friendship row owned by a user.
func (s *Store) ListFriendEdges(ctx context.Context, ownerUserID string) ([]storage.FriendEdge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT owner_user_id, friend_user_id, created_at
		 FROM friend_edges WHERE owner_user_id = ? ORDER BY created_at, friend_user_id`,
		strings.TrimSpace(ownerUserID),
	)
	if err != nil {
		return nil, fmt.Errorf("list friend edges: %w", err)
	}
	defer rows.Close()

	var edges []storage.FriendEdge
	for rows.Next() {
		var edge storage.FriendEdge
		var createdAt int64
		if err := rows.Scan(&edge.OwnerUserID, &edge.FriendUserID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan friend edge: %w", err)
		}
		edge.CreatedAt = fromMillis(createdAt)
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend edges: %w", err)
	}
	return edges, nil
}

// PutFriendRequest inserts one pending request; ErrAlreadyExists when the
// same ordered pair is already pending.
func (s *Store) PutFriendRequest(ctx context.Context, request storage.FriendRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	toUserID := strings.TrimSpace(request.ToUserID)
	fromUserID := strings.TrimSpace(request.FromUserID)
	if toUserID == "" || fromUserID == "" {
		return fmt.Errorf("to and from user ids are required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO friend_requests (to_user_id, from_user_id, created_at) VALUES (?, ?, ?)`,
		toUserID,
		fromUserID,
		toMillis(request.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put friend request: %w", err)
	}
	return nil
}

// GetFriendRequest returns one pending directed request.
func (s *Store) GetFriendRequest(ctx context.Context, toUserID, fromUserID string) (storage.FriendRequest, error) {
	if err := ctx.Err(); err != nil {
		return storage.FriendRequest{}, err
	}
	if err := s.ready(); err != nil {
		return storage.FriendRequest{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT to_user_id, from_user_id, created_at
		 FROM friend_requests WHERE to_user_id = ? AND from_user_id = ?`,
		strings.TrimSpace(toUserID),
		strings.TrimSpace(fromUserID),
	)
	var request storage.FriendRequest
	var createdAt int64
	if err := row.Scan(&request.ToUserID, &request.FromUserID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.FriendRequest{}, storage.ErrNotFound
		}
		return storage.FriendRequest{}, fmt.Errorf("get friend request: %w", err)
	}
	request.CreatedAt = fromMillis(createdAt)
	return request, nil
}

// DeleteFriendRequest removes one pending request; deleting a missing request
// is not an error.
func (s *Store) DeleteFriendRequest(ctx context.Context, toUserID, fromUserID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM friend_requests WHERE to_user_id = ? AND from_user_id = ?`,
		strings.TrimSpace(toUserID),
		strings.TrimSpace(fromUserID),
	)
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	return nil
}

// ListFriendRequestsTo returns pending requests addressed to a user.
func (s *Store) ListFriendRequestsTo(ctx context.Context, toUserID string) ([]storage.FriendRequest, error) {
	return s.listFriendRequests(ctx, "to_user_id", toUserID)
}

// ListFriendRequestsFrom returns pending requests sent by a user.
func (s *Store) ListFriendRequestsFrom(ctx context.Context, fromUserID string) ([]storage.FriendRequest, error) {
	return s.listFriendRequests(ctx, "from_user_id", fromUserID)
}

func (s *Store) listFriendRequests(ctx context.Context, column, userID string) ([]storage.FriendRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT to_user_id, from_user_id, created_at
		 FROM friend_requests WHERE `+column+` = ? ORDER BY created_at`,
		strings.TrimSpace(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	defer rows.Close()

	var requests []storage.FriendRequest
	for rows.Next() {
		var request storage.FriendRequest
		var createdAt int64
		if err := rows.Scan(&request.ToUserID, &request.FromUserID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		request.CreatedAt = fromMillis(createdAt)
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend requests: %w", err)
	}
	return requests, nil
}
