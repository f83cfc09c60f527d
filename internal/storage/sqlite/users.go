package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xbiplob/WeFriend/internal/storage"
)

// PutUser upserts one account profile row.
func (s *Store) PutUser(ctx context.Context, user storage.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	userID := strings.TrimSpace(user.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO users (user_id, display_name, avatar_ref, username, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   avatar_ref = excluded.avatar_ref,
		   updated_at = excluded.updated_at`,
		userID,
		user.DisplayName,
		user.AvatarRef,
		user.Username,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser returns one account profile row.
func (s *Store) GetUser(ctx context.Context, userID string) (storage.User, error) {
	if err := ctx.Err(); err != nil {
		return storage.User{}, err
	}
	if err := s.ready(); err != nil {
		return storage.User{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, display_name, avatar_ref, username, created_at, updated_at
		 FROM users WHERE user_id = ?`,
		strings.TrimSpace(userID),
	)
	var user storage.User
	var createdAt, updatedAt int64
	err := row.Scan(&user.UserID, &user.DisplayName, &user.AvatarRef, &user.Username, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.User{}, storage.ErrNotFound
		}
		return storage.User{}, fmt.Errorf("get user: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

// ClaimUsername inserts one row into the username uniqueness index. The
// PRIMARY KEY on username and the UNIQUE constraint on user_id make this the
// single mutual-exclusion path in the store.
func (s *Store) ClaimUsername(ctx context.Context, username string, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username is required")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO usernames (username, user_id) VALUES (?, ?)`,
		username,
		userID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("claim username: %w", err)
	}
	return nil
}

// SetUserUsername stores the claimed username on the profile row.
func (s *Store) SetUserUsername(ctx context.Context, userID string, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE users SET username = ? WHERE user_id = ?`,
		username,
		strings.TrimSpace(userID),
	)
	if err != nil {
		return fmt.Errorf("set user username: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set user username rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ResolveUsername returns the user id holding a username.
func (s *Store) ResolveUsername(ctx context.Context, username string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.ready(); err != nil {
		return "", err
	}

	var userID string
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id FROM usernames WHERE username = ?`,
		username,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("resolve username: %w", err)
	}
	return userID, nil
}
