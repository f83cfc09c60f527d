package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xbiplob/WeFriend/internal/storage"
)

// PutChatThread upserts the canonical thread summary.
func (s *Store) PutChatThread(ctx context.Context, thread storage.ChatThread) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	threadID := strings.TrimSpace(thread.ThreadID)
	if threadID == "" {
		return fmt.Errorf("thread id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO chat_threads (thread_id, user_a, user_b, last_message_text, last_message_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET
		   last_message_text = excluded.last_message_text,
		   last_message_at = excluded.last_message_at,
		   updated_at = excluded.updated_at`,
		threadID,
		thread.UserA,
		thread.UserB,
		thread.LastMessageText,
		toMillis(thread.LastMessageAt),
		toMillis(thread.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put chat thread: %w", err)
	}
	return nil
}

// GetChatThread returns the canonical thread summary.
func (s *Store) GetChatThread(ctx context.Context, threadID string) (storage.ChatThread, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChatThread{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ChatThread{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT thread_id, user_a, user_b, last_message_text, last_message_at, updated_at
		 FROM chat_threads WHERE thread_id = ?`,
		strings.TrimSpace(threadID),
	)
	var thread storage.ChatThread
	var lastMessageAt, updatedAt int64
	err := row.Scan(&thread.ThreadID, &thread.UserA, &thread.UserB, &thread.LastMessageText, &lastMessageAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ChatThread{}, storage.ErrNotFound
		}
		return storage.ChatThread{}, fmt.Errorf("get chat thread: %w", err)
	}
	thread.LastMessageAt = fromMillis(lastMessageAt)
	thread.UpdatedAt = fromMillis(updatedAt)
	return thread, nil
}

// AppendMessage inserts one message and returns it with the store-assigned
// sequence number.
func (s *Store) AppendMessage(ctx context.Context, message storage.Message) (storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return storage.Message{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Message{}, err
	}
	if strings.TrimSpace(message.MessageID) == "" {
		return storage.Message{}, fmt.Errorf("message id is required")
	}
	if strings.TrimSpace(message.ThreadID) == "" {
		return storage.Message{}, fmt.Errorf("thread id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`INSERT INTO messages (message_id, thread_id, sender_id, recipient_id, text, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 RETURNING seq`,
		message.MessageID,
		message.ThreadID,
		message.SenderID,
		message.RecipientID,
		message.Text,
		boolToInt(message.Read),
		toMillis(message.CreatedAt),
	)
	if err := row.Scan(&message.Seq); err != nil {
		if isUniqueViolation(err) {
			return storage.Message{}, storage.ErrAlreadyExists
		}
		return storage.Message{}, fmt.Errorf("append message: %w", err)
	}
	return message, nil
}

// ListMessages returns a thread's messages ordered by creation time with
// sequence tie-break.
func (s *Store) ListMessages(ctx context.Context, threadID string) ([]storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT message_id, thread_id, sender_id, recipient_id, text, read, created_at, seq
		 FROM messages WHERE thread_id = ? ORDER BY created_at, seq`,
		strings.TrimSpace(threadID),
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []storage.Message
	for rows.Next() {
		var message storage.Message
		var read int
		var createdAt int64
		if err := rows.Scan(&message.MessageID, &message.ThreadID, &message.SenderID, &message.RecipientID, &message.Text, &read, &createdAt, &message.Seq); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		message.Read = read != 0
		message.CreatedAt = fromMillis(createdAt)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// MarkThreadMessagesRead flags every unread message addressed to the
// recipient in one statement. Repeating the call affects zero rows.
func (s *Store) MarkThreadMessagesRead(ctx context.Context, threadID, recipientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE messages SET read = 1 WHERE thread_id = ? AND recipient_id = ? AND read = 0`,
		strings.TrimSpace(threadID),
		strings.TrimSpace(recipientID),
	)
	if err != nil {
		return fmt.Errorf("mark thread messages read: %w", err)
	}
	return nil
}

// CountUnreadMessages tallies unread inbound messages for a recipient.
func (s *Store) CountUnreadMessages(ctx context.Context, threadID, recipientID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}

	var count int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM messages WHERE thread_id = ? AND recipient_id = ? AND read = 0`,
		strings.TrimSpace(threadID),
		strings.TrimSpace(recipientID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}

// PutChatSummary upserts one user's denormalized thread view. The unread
// counter is only written on insert; adjustments go through AdjustChatUnread
// so concurrent sends cannot clobber each other.
func (s *Store) PutChatSummary(ctx context.Context, summary storage.ChatSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	ownerUserID := strings.TrimSpace(summary.OwnerUserID)
	threadID := strings.TrimSpace(summary.ThreadID)
	if ownerUserID == "" || threadID == "" {
		return fmt.Errorf("owner user id and thread id are required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO chat_summaries (owner_user_id, thread_id, other_user_id, last_message_text, last_message_at, unread_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_user_id, thread_id) DO UPDATE SET
		   last_message_text = excluded.last_message_text,
		   last_message_at = excluded.last_message_at,
		   updated_at = excluded.updated_at`,
		ownerUserID,
		threadID,
		summary.OtherUserID,
		summary.LastMessageText,
		toMillis(summary.LastMessageAt),
		summary.UnreadCount,
		toMillis(summary.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put chat summary: %w", err)
	}
	return nil
}

// GetChatSummary returns one user's view of a thread.
func (s *Store) GetChatSummary(ctx context.Context, ownerUserID, threadID string) (storage.ChatSummary, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChatSummary{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ChatSummary{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT owner_user_id, thread_id, other_user_id, last_message_text, last_message_at, unread_count, updated_at
		 FROM chat_summaries WHERE owner_user_id = ? AND thread_id = ?`,
		strings.TrimSpace(ownerUserID),
		strings.TrimSpace(threadID),
	)
	return scanChatSummary(row)
}

// ListChatSummaries returns a user's thread views, most recent first.
func (s *Store) ListChatSummaries(ctx context.Context, ownerUserID string) ([]storage.ChatSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT owner_user_id, thread_id, other_user_id, last_message_text, last_message_at, unread_count, updated_at
		 FROM chat_summaries WHERE owner_user_id = ? ORDER BY last_message_at DESC, thread_id`,
		strings.TrimSpace(ownerUserID),
	)
	if err != nil {
		return nil, fmt.Errorf("list chat summaries: %w", err)
	}
	defer rows.Close()

	var summaries []storage.ChatSummary
	for rows.Next() {
		summary, err := scanChatSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat summaries: %w", err)
	}
	return summaries, nil
}

// AdjustChatUnread adds delta to the unread counter atomically, clamping at
// zero.
func (s *Store) AdjustChatUnread(ctx context.Context, ownerUserID, threadID string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE chat_summaries SET unread_count = MAX(0, unread_count + ?)
		 WHERE owner_user_id = ? AND thread_id = ?`,
		delta,
		strings.TrimSpace(ownerUserID),
		strings.TrimSpace(threadID),
	)
	if err != nil {
		return fmt.Errorf("adjust chat unread: %w", err)
	}
	return nil
}

// SetChatUnread overwrites the unread counter; used by read receipts and
// mirror reconciliation.
func (s *Store) SetChatUnread(ctx context.Context, ownerUserID, threadID string, value int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE chat_summaries SET unread_count = ? WHERE owner_user_id = ? AND thread_id = ?`,
		value,
		strings.TrimSpace(ownerUserID),
		strings.TrimSpace(threadID),
	)
	if err != nil {
		return fmt.Errorf("set chat unread: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChatSummary(row rowScanner) (storage.ChatSummary, error) {
	var summary storage.ChatSummary
	var lastMessageAt, updatedAt int64
	err := row.Scan(&summary.OwnerUserID, &summary.ThreadID, &summary.OtherUserID, &summary.LastMessageText, &lastMessageAt, &summary.UnreadCount, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ChatSummary{}, storage.ErrNotFound
		}
		return storage.ChatSummary{}, fmt.Errorf("scan chat summary: %w", err)
	}
	summary.LastMessageAt = fromMillis(lastMessageAt)
	summary.UpdatedAt = fromMillis(updatedAt)
	return summary, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
