// Package feed owns posts, likes, comments, and feed assembly.
package feed

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/xbiplob/WeFriend/internal/livequery"
	"github.com/xbiplob/WeFriend/internal/platform/blob"
	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/platform/id"
	"github.com/xbiplob/WeFriend/internal/services/notifications"
	"github.com/xbiplob/WeFriend/internal/storage"
)

// DefaultFeedLimit caps feed pages when the caller does not set one.
const DefaultFeedLimit = 30

// FriendLister resolves the confirmed friends of a user. The social engine
// satisfies it.
type FriendLister interface {
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// UsernameResolver maps a username to its owner. The profile engine
// satisfies it; a nil resolver disables mention detection.
type UsernameResolver interface {
	ResolveUsername(ctx context.Context, username string) (string, error)
}

// Service owns the feed.
type Service struct {
	store    storage.FeedStore
	friends  FriendLister
	mentions UsernameResolver
	notifier notifications.Notifier
	uploader blob.Uploader
	broker   *livequery.Broker
	clock    func() time.Time
	newID    func() (string, error)
}

// NewService constructs the feed engine.
func NewService(store storage.FeedStore, friends FriendLister, mentions UsernameResolver, notifier notifications.Notifier, uploader blob.Uploader, broker *livequery.Broker, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:    store,
		friends:  friends,
		mentions: mentions,
		notifier: notifier,
		uploader: uploader,
		broker:   broker,
		clock:    clock,
		newID:    id.NewID,
	}
}

// PostsTopic is the live-query topic kicked by every post, like, and comment
// write. Feed subscriptions watch it and re-resolve the friend set on each
// recompute, so friendship changes show up without re-subscribing.
func PostsTopic() livequery.Topic {
	return livequery.TopicFor("posts")
}

// PostTopic names the live-query topic for one post and its engagement.
func PostTopic(postID string) livequery.Topic {
	return livequery.TopicFor("posts", postID)
}

// UploadImage stores a post image and returns its reference for CreatePost.
func (s *Service) UploadImage(ctx context.Context, data []byte, contentType string) (string, error) {
	if s.uploader == nil {
		return "", platformerrors.New(platformerrors.CodeBlobInvalidType, "image uploads are not configured")
	}
	object, err := s.uploader.Upload(ctx, data, contentType)
	if err != nil {
		return "", err
	}
	return object.URL, nil
}

// CreatePost publishes a post. Text and image are each optional but not both.
func (s *Service) CreatePost(ctx context.Context, authorID, text, imageRef string) (storage.Post, error) {
	text = strings.TrimSpace(text)
	imageRef = strings.TrimSpace(imageRef)
	if text == "" && imageRef == "" {
		return storage.Post{}, platformerrors.New(platformerrors.CodePostEmpty, "post needs text or an image")
	}

	postID, err := s.newID()
	if err != nil {
		return storage.Post{}, storeFailure(err)
	}
	post := storage.Post{
		PostID:    postID,
		AuthorID:  authorID,
		Text:      text,
		ImageRef:  imageRef,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.store.PutPost(ctx, post); err != nil {
		return storage.Post{}, storeFailure(err)
	}
	s.publish(PostsTopic(), PostTopic(postID))
	return post, nil
}

// ToggleLike flips the caller's membership in the post's like set and moves
// the denormalized counter with it. The author is notified only on the
// transition to liked.
func (s *Service) ToggleLike(ctx context.Context, userID, postID string) (liked bool, err error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return false, err
	}

	has, err := s.store.HasPostLike(ctx, postID, userID)
	if err != nil {
		return false, storeFailure(err)
	}
	if has {
		if err := s.store.DeletePostLike(ctx, postID, userID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Lost an untoggle race; the like and its count move are
				// already accounted for.
				return false, nil
			}
			return false, storeFailure(err)
		}
		if err := s.store.AdjustPostLikes(ctx, postID, -1); err != nil {
			log.Printf("feed: adjust likes %s: %v", postID, err)
		}
		s.publish(PostsTopic(), PostTopic(postID))
		return false, nil
	}

	if err := s.store.InsertPostLike(ctx, storage.PostLike{PostID: postID, UserID: userID, CreatedAt: s.clock().UTC()}); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Lost a toggle race; the like is already in place.
			return true, nil
		}
		return false, storeFailure(err)
	}
	if err := s.store.AdjustPostLikes(ctx, postID, 1); err != nil {
		log.Printf("feed: adjust likes %s: %v", postID, err)
	}
	if post.AuthorID != userID {
		s.notify(ctx, notifications.Event{
			OwnerUserID:  post.AuthorID,
			Kind:         notifications.KindPostLiked,
			SourceUserID: userID,
			Payload:      map[string]string{"post_id": postID},
		})
	}
	s.publish(PostsTopic(), PostTopic(postID))
	return true, nil
}

// AddComment appends a comment in arrival order and notifies the post author.
func (s *Service) AddComment(ctx context.Context, authorID, postID, text string) (storage.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return storage.Comment{}, platformerrors.New(platformerrors.CodeCommentEmpty, "comment text is required")
	}
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return storage.Comment{}, err
	}

	commentID, err := s.newID()
	if err != nil {
		return storage.Comment{}, storeFailure(err)
	}
	comment, err := s.store.AppendComment(ctx, storage.Comment{
		CommentID: commentID,
		PostID:    postID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: s.clock().UTC(),
	})
	if err != nil {
		return storage.Comment{}, storeFailure(err)
	}
	if err := s.store.AdjustPostComments(ctx, postID, 1); err != nil {
		log.Printf("feed: adjust comments %s: %v", postID, err)
	}
	if post.AuthorID != authorID {
		s.notify(ctx, notifications.Event{
			OwnerUserID:  post.AuthorID,
			Kind:         notifications.KindPostCommented,
			SourceUserID: authorID,
			Payload:      map[string]string{"post_id": postID, "comment_id": comment.CommentID},
		})
	}
	s.notifyMentions(ctx, post, comment)
	s.publish(PostsTopic(), PostTopic(postID))
	return comment, nil
}

var mentionPattern = regexp.MustCompile(`@([A-Za-z][A-Za-z0-9._-]{2,31})`)

// notifyMentions notifies every resolvable @username in a comment once.
// The comment author and the post author are skipped; the author already
// receives the comment notification.
func (s *Service) notifyMentions(ctx context.Context, post storage.Post, comment storage.Comment) {
	if s.mentions == nil {
		return
	}
	seen := make(map[string]bool)
	for _, match := range mentionPattern.FindAllStringSubmatch(comment.Text, -1) {
		username := match[1]
		if seen[username] {
			continue
		}
		seen[username] = true
		userID, err := s.mentions.ResolveUsername(ctx, username)
		if err != nil {
			// Unresolvable mentions are plain text.
			continue
		}
		if userID == comment.AuthorID || userID == post.AuthorID {
			continue
		}
		s.notify(ctx, notifications.Event{
			OwnerUserID:  userID,
			Kind:         notifications.KindMention,
			SourceUserID: comment.AuthorID,
			Payload:      map[string]string{"post_id": post.PostID, "comment_id": comment.CommentID},
		})
	}
}

// DeletePost removes a post and the like and comment index entries that
// point at it. Only the author may delete.
func (s *Service) DeletePost(ctx context.Context, callerID, postID string) error {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != callerID {
		return platformerrors.New(platformerrors.CodeNotAuthor, "only the author can delete a post")
	}

	if err := s.store.DeletePost(ctx, postID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storeFailure(err)
	}
	if err := s.store.DeletePostLikesByPost(ctx, postID); err != nil {
		log.Printf("feed: drop likes for %s: %v", postID, err)
	}
	if err := s.store.DeleteCommentsByPost(ctx, postID); err != nil {
		log.Printf("feed: drop comments for %s: %v", postID, err)
	}
	if post.ImageRef != "" && s.uploader != nil {
		if err := s.uploader.Delete(ctx, post.ImageRef); err != nil {
			log.Printf("feed: drop image for %s: %v", postID, err)
		}
	}
	s.publish(PostsTopic(), PostTopic(postID))
	return nil
}

// DeleteComment removes one comment. Only the comment's author may delete.
func (s *Service) DeleteComment(ctx context.Context, callerID, commentID string) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return platformerrors.New(platformerrors.CodeCommentNotFound, "comment does not exist")
		}
		return storeFailure(err)
	}
	if comment.AuthorID != callerID {
		return platformerrors.New(platformerrors.CodeNotAuthor, "only the author can delete a comment")
	}

	if err := s.store.DeleteComment(ctx, commentID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storeFailure(err)
	}
	if err := s.store.AdjustPostComments(ctx, comment.PostID, -1); err != nil {
		log.Printf("feed: adjust comments %s: %v", comment.PostID, err)
	}
	s.publish(PostsTopic(), PostTopic(comment.PostID))
	return nil
}

// GetPost returns one post with its counters reconciled against the like set
// and comment log.
func (s *Service) GetPost(ctx context.Context, postID string) (storage.Post, error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return storage.Post{}, err
	}
	return s.reconcileCounters(ctx, post), nil
}

// ListComments returns a post's comments in arrival order.
func (s *Service) ListComments(ctx context.Context, postID string) ([]storage.Comment, error) {
	if _, err := s.getPost(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, postID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return comments, nil
}

// HasLiked reports whether a user is in a post's like set.
func (s *Service) HasLiked(ctx context.Context, userID, postID string) (bool, error) {
	has, err := s.store.HasPostLike(ctx, postID, userID)
	if err != nil {
		return false, storeFailure(err)
	}
	return has, nil
}

// FeedFor assembles the caller's feed: their own posts and the posts of
// their current friends, newest first. The friend set is resolved at query
// time, never materialized.
func (s *Service) FeedFor(ctx context.Context, userID string, limit int) ([]storage.Post, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	friendIDs, err := s.friends.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	authors := append([]string{userID}, friendIDs...)
	posts, err := s.store.ListPostsByAuthors(ctx, authors, limit)
	if err != nil {
		return nil, storeFailure(err)
	}
	return posts, nil
}

func (s *Service) getPost(ctx context.Context, postID string) (storage.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Post{}, platformerrors.New(platformerrors.CodePostNotFound, "post does not exist")
		}
		return storage.Post{}, storeFailure(err)
	}
	return post, nil
}

// reconcileCounters recounts the like set and comment log and repairs the
// denormalized counters when they drifted.
func (s *Service) reconcileCounters(ctx context.Context, post storage.Post) storage.Post {
	likes, err := s.store.CountPostLikes(ctx, post.PostID)
	if err == nil && likes != post.LikesCount {
		if err := s.store.SetPostLikesCount(ctx, post.PostID, likes); err != nil {
			log.Printf("feed: repair likes count %s: %v", post.PostID, err)
		}
		post.LikesCount = likes
	}
	comments, err := s.store.CountComments(ctx, post.PostID)
	if err == nil && comments != post.CommentsCount {
		if err := s.store.SetPostCommentsCount(ctx, post.PostID, comments); err != nil {
			log.Printf("feed: repair comments count %s: %v", post.PostID, err)
		}
		post.CommentsCount = comments
	}
	return post
}

func (s *Service) notify(ctx context.Context, event notifications.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		log.Printf("feed: notify %s: %v", event.Kind, err)
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
