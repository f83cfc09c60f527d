package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xbiplob/WeFriend/internal/storage"
)

// PutPost upserts one post row. Counters are only written on insert;
// adjustments go through the atomic Adjust methods.
func (s *Store) PutPost(ctx context.Context, post storage.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	postID := strings.TrimSpace(post.PostID)
	if postID == "" {
		return fmt.Errorf("post id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO posts (post_id, author_id, text, image_ref, likes_count, comments_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(post_id) DO UPDATE SET
		   text = excluded.text,
		   image_ref = excluded.image_ref`,
		postID,
		post.AuthorID,
		post.Text,
		post.ImageRef,
		post.LikesCount,
		post.CommentsCount,
		toMillis(post.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put post: %w", err)
	}
	return nil
}

// GetPost returns one post row.
func (s *Store) GetPost(ctx context.Context, postID string) (storage.Post, error) {
	if err := ctx.Err(); err != nil {
		return storage.Post{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Post{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT post_id, author_id, text, image_ref, likes_count, comments_count, created_at
		 FROM posts WHERE post_id = ?`,
		strings.TrimSpace(postID),
	)
	return scanPost(row)
}

// DeletePost removes one post row.
func (s *Store) DeletePost(ctx context.Context, postID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM posts WHERE post_id = ?`,
		strings.TrimSpace(postID),
	)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// ListPostsByAuthors returns the newest posts of the given authors.
func (s *Store) ListPostsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]storage.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(authorIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	placeholders := strings.Repeat("?,", len(authorIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(authorIDs)+1)
	for _, authorID := range authorIDs {
		args = append(args, authorID)
	}
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT post_id, author_id, text, image_ref, likes_count, comments_count, created_at
		 FROM posts WHERE author_id IN (`+placeholders+`)
		 ORDER BY created_at DESC, post_id LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list posts by authors: %w", err)
	}
	defer rows.Close()

	var posts []storage.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// DeletePostLikesByPost drops the like set of a deleted post.
func (s *Store) DeletePostLikesByPost(ctx context.Context, postID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = ?`, strings.TrimSpace(postID))
	if err != nil {
		return fmt.Errorf("delete post likes: %w", err)
	}
	return nil
}

// DeleteCommentsByPost drops the comment log of a deleted post.
func (s *Store) DeleteCommentsByPost(ctx context.Context, postID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM post_comments WHERE post_id = ?`, strings.TrimSpace(postID))
	if err != nil {
		return fmt.Errorf("delete post comments: %w", err)
	}
	return nil
}

// InsertPostLike adds one like-set row; ErrAlreadyExists when present.
func (s *Store) InsertPostLike(ctx context.Context, like storage.PostLike) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)`,
		strings.TrimSpace(like.PostID),
		strings.TrimSpace(like.UserID),
		toMillis(like.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert post like: %w", err)
	}
	return nil
}

// DeletePostLike removes one like-set row; ErrNotFound when absent.
func (s *Store) DeletePostLike(ctx context.Context, postID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`,
		strings.TrimSpace(postID),
		strings.TrimSpace(userID),
	)
	if err != nil {
		return fmt.Errorf("delete post like: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete post like rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HasPostLike reports like-set membership.
func (s *Store) HasPostLike(ctx context.Context, postID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}

	var found int
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT 1 FROM post_likes WHERE post_id = ? AND user_id = ?`,
		strings.TrimSpace(postID),
		strings.TrimSpace(userID),
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has post like: %w", err)
	}
	return true, nil
}

// ListPostLikes returns the like set in like order.
func (s *Store) ListPostLikes(ctx context.Context, postID string) ([]storage.PostLike, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT post_id, user_id, created_at FROM post_likes WHERE post_id = ? ORDER BY created_at, user_id`,
		strings.TrimSpace(postID),
	)
	if err != nil {
		return nil, fmt.Errorf("list post likes: %w", err)
	}
	defer rows.Close()

	var likes []storage.PostLike
	for rows.Next() {
		var like storage.PostLike
		var createdAt int64
		if err := rows.Scan(&like.PostID, &like.UserID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan post like: %w", err)
		}
		like.CreatedAt = fromMillis(createdAt)
		likes = append(likes, like)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post likes: %w", err)
	}
	return likes, nil
}

// CountPostLikes tallies the like set.
func (s *Store) CountPostLikes(ctx context.Context, postID string) (int64, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM post_likes WHERE post_id = ?`, postID)
}

// AdjustPostLikes adds delta to the denormalized likes counter atomically.
func (s *Store) AdjustPostLikes(ctx context.Context, postID string, delta int64) error {
	return s.adjustPostCounter(ctx, "likes_count", postID, delta)
}

// SetPostLikesCount overwrites the likes counter; used by reconciliation.
func (s *Store) SetPostLikesCount(ctx context.Context, postID string, value int64) error {
	return s.setPostCounter(ctx, "likes_count", postID, value)
}

// AppendComment inserts one comment and returns it with the store-assigned
// sequence number.
func (s *Store) AppendComment(ctx context.Context, comment storage.Comment) (storage.Comment, error) {
	if err := ctx.Err(); err != nil {
		return storage.Comment{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Comment{}, err
	}
	if strings.TrimSpace(comment.CommentID) == "" {
		return storage.Comment{}, fmt.Errorf("comment id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`INSERT INTO post_comments (comment_id, post_id, author_id, text, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING seq`,
		comment.CommentID,
		comment.PostID,
		comment.AuthorID,
		comment.Text,
		toMillis(comment.CreatedAt),
	)
	if err := row.Scan(&comment.Seq); err != nil {
		if isUniqueViolation(err) {
			return storage.Comment{}, storage.ErrAlreadyExists
		}
		return storage.Comment{}, fmt.Errorf("append comment: %w", err)
	}
	return comment, nil
}

// GetComment returns one comment row.
func (s *Store) GetComment(ctx context.Context, commentID string) (storage.Comment, error) {
	if err := ctx.Err(); err != nil {
		return storage.Comment{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Comment{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT comment_id, post_id, author_id, text, created_at, seq
		 FROM post_comments WHERE comment_id = ?`,
		strings.TrimSpace(commentID),
	)
	var comment storage.Comment
	var createdAt int64
	err := row.Scan(&comment.CommentID, &comment.PostID, &comment.AuthorID, &comment.Text, &createdAt, &comment.Seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Comment{}, storage.ErrNotFound
		}
		return storage.Comment{}, fmt.Errorf("get comment: %w", err)
	}
	comment.CreatedAt = fromMillis(createdAt)
	return comment, nil
}

// DeleteComment removes one comment row; ErrNotFound when absent.
func (s *Store) DeleteComment(ctx context.Context, commentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM post_comments WHERE comment_id = ?`,
		strings.TrimSpace(commentID),
	)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete comment rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListComments returns a post's comments in arrival order.
func (s *Store) ListComments(ctx context.Context, postID string) ([]storage.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT comment_id, post_id, author_id, text, created_at, seq
		 FROM post_comments WHERE post_id = ? ORDER BY seq`,
		strings.TrimSpace(postID),
	)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []storage.Comment
	for rows.Next() {
		var comment storage.Comment
		var createdAt int64
		if err := rows.Scan(&comment.CommentID, &comment.PostID, &comment.AuthorID, &comment.Text, &createdAt, &comment.Seq); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comment.CreatedAt = fromMillis(createdAt)
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// CountComments tallies a post's comment log.
func (s *Store) CountComments(ctx context.Context, postID string) (int64, error) {
	return s.countRows(ctx, `SELECT COUNT(*) FROM post_comments WHERE post_id = ?`, postID)
}

// AdjustPostComments adds delta to the denormalized comments counter.
func (s *Store) AdjustPostComments(ctx context.Context, postID string, delta int64) error {
	return s.adjustPostCounter(ctx, "comments_count", postID, delta)
}

// SetPostCommentsCount overwrites the comments counter; used by reconciliation.
func (s *Store) SetPostCommentsCount(ctx context.Context, postID string, value int64) error {
	return s.setPostCounter(ctx, "comments_count", postID, value)
}

func (s *Store) countRows(ctx context.Context, query, postID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	var count int64
	if err := s.sqlDB.QueryRowContext(ctx, query, strings.TrimSpace(postID)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

func (s *Store) adjustPostCounter(ctx context.Context, column, postID string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE posts SET `+column+` = MAX(0, `+column+` + ?) WHERE post_id = ?`,
		delta,
		strings.TrimSpace(postID),
	)
	if err != nil {
		return fmt.Errorf("adjust post %s: %w", column, err)
	}
	return nil
}

func (s *Store) setPostCounter(ctx context.Context, column, postID string, value int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE posts SET `+column+` = ? WHERE post_id = ?`,
		value,
		strings.TrimSpace(postID),
	)
	if err != nil {
		return fmt.Errorf("set post %s: %w", column, err)
	}
	return nil
}

func scanPost(row rowScanner) (storage.Post, error) {
	var post storage.Post
	var createdAt int64
	err := row.Scan(&post.PostID, &post.AuthorID, &post.Text, &post.ImageRef, &post.LikesCount, &post.CommentsCount, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Post{}, storage.ErrNotFound
		}
		return storage.Post{}, fmt.Errorf("scan post: %w", err)
	}
	post.CreatedAt = fromMillis(createdAt)
	return post, nil
}
