package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/xbiplob/WeFriend/internal/storage"
)

// PutNotification inserts one recipient inbox row.
func (s *Store) PutNotification(ctx context.Context, notification storage.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	notificationID := strings.TrimSpace(notification.NotificationID)
	if notificationID == "" {
		return fmt.Errorf("notification id is required")
	}
	if strings.TrimSpace(notification.OwnerUserID) == "" {
		return fmt.Errorf("owner user id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO notifications (notification_id, owner_user_id, kind, source_user_id, payload_json, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		notificationID,
		notification.OwnerUserID,
		notification.Kind,
		notification.SourceUserID,
		notification.PayloadJSON,
		boolToInt(notification.Read),
		toMillis(notification.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put notification: %w", err)
	}
	return nil
}

// ListNotifications returns a recipient's newest notifications.
func (s *Store) ListNotifications(ctx context.Context, ownerUserID string, limit int) ([]storage.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT notification_id, owner_user_id, kind, source_user_id, payload_json, read, created_at
		 FROM notifications WHERE owner_user_id = ?
		 ORDER BY created_at DESC, notification_id LIMIT ?`,
		strings.TrimSpace(ownerUserID),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []storage.Notification
	for rows.Next() {
		var notification storage.Notification
		var read int
		var createdAt int64
		if err := rows.Scan(&notification.NotificationID, &notification.OwnerUserID, &notification.Kind, &notification.SourceUserID, &notification.PayloadJSON, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notification.Read = read != 0
		notification.CreatedAt = fromMillis(createdAt)
		notifications = append(notifications, notification)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead flags one owned notification; ErrNotFound when the
// owner does not hold it.
func (s *Store) MarkNotificationRead(ctx context.Context, ownerUserID, notificationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE notifications SET read = 1 WHERE owner_user_id = ? AND notification_id = ?`,
		strings.TrimSpace(ownerUserID),
		strings.TrimSpace(notificationID),
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead flags every unread notification for an owner.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, ownerUserID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE notifications SET read = 1 WHERE owner_user_id = ? AND read = 0`,
		strings.TrimSpace(ownerUserID),
	)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
