package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xbiplob/WeFriend/internal/storage"
)

// PutPresenceLease upserts one presence lease (last writer wins).
func (s *Store) PutPresenceLease(ctx context.Context, lease storage.PresenceLease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	userID := strings.TrimSpace(lease.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO presence (user_id, online, expires_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   online = excluded.online,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		userID,
		boolToInt(lease.Online),
		toMillis(lease.ExpiresAt),
		toMillis(lease.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put presence lease: %w", err)
	}
	return nil
}

// GetPresence returns one presence lease.
func (s *Store) GetPresence(ctx context.Context, userID string) (storage.PresenceLease, error) {
	if err := ctx.Err(); err != nil {
		return storage.PresenceLease{}, err
	}
	if err := s.ready(); err != nil {
		return storage.PresenceLease{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, online, expires_at, updated_at FROM presence WHERE user_id = ?`,
		strings.TrimSpace(userID),
	)
	var lease storage.PresenceLease
	var online int
	var expiresAt, updatedAt int64
	if err := row.Scan(&lease.UserID, &online, &expiresAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PresenceLease{}, storage.ErrNotFound
		}
		return storage.PresenceLease{}, fmt.Errorf("get presence: %w", err)
	}
	lease.Online = online != 0
	lease.ExpiresAt = fromMillis(expiresAt)
	lease.UpdatedAt = fromMillis(updatedAt)
	return lease, nil
}

// ExpirePresenceLeases demotes every lease past now in one statement and
// returns the demoted user ids.
func (s *Store) ExpirePresenceLeases(ctx context.Context, now time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`UPDATE presence SET online = 0, updated_at = ?
		 WHERE online = 1 AND expires_at <= ?
		 RETURNING user_id`,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("expire presence leases: %w", err)
	}
	defer rows.Close()

	var expired []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan expired lease: %w", err)
		}
		expired = append(expired, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired leases: %w", err)
	}
	return expired, nil
}
