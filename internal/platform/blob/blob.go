// Package blob adapts the external profile/image storage collaborator.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
	"github.com/xbiplob/WeFriend/internal/platform/id"
)

// MaxUploadBytes is the collaborator-imposed size limit per object.
const MaxUploadBytes = 5 << 20

// allowedTypes are the image content types the collaborator accepts.
var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Object describes one stored blob.
type Object struct {
	URL         string
	Path        string
	Size        int64
	ContentType string
}

// Uploader is the narrow contract the storage collaborator fulfills.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (Object, error)
	Delete(ctx context.Context, objectPath string) error
}

// ValidateUpload enforces the shared size and type policy so every
// implementation rejects the same inputs.
func ValidateUpload(data []byte, contentType string) error {
	if _, ok := allowedTypes[strings.ToLower(strings.TrimSpace(contentType))]; !ok {
		return platformerrors.WithMetadata(
			platformerrors.CodeBlobInvalidType,
			"unsupported image type",
			map[string]string{"content_type": contentType},
		)
	}
	if int64(len(data)) > MaxUploadBytes {
		return platformerrors.WithMetadata(
			platformerrors.CodeBlobTooLarge,
			"image exceeds the 5MB limit",
			map[string]string{"size": fmt.Sprintf("%d", len(data))},
		)
	}
	return nil
}

// MemoryStore is an in-process Uploader used by tests and local development.
type MemoryStore struct {
	baseURL string

	mu      sync.Mutex
	objects map[string]Object
}

// NewMemoryStore creates an in-memory blob store serving from baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]Object),
	}
}

// Upload validates and stores one object, returning its stable URL.
func (m *MemoryStore) Upload(ctx context.Context, data []byte, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if err := ValidateUpload(data, contentType); err != nil {
		return Object{}, err
	}

	objectID, err := id.NewID()
	if err != nil {
		return Object{}, fmt.Errorf("new object id: %w", err)
	}
	objectPath := path.Join("images", objectID+"."+allowedTypes[strings.ToLower(strings.TrimSpace(contentType))])
	object := Object{
		URL:         m.baseURL + "/" + objectPath,
		Path:        objectPath,
		Size:        int64(len(data)),
		ContentType: contentType,
	}

	m.mu.Lock()
	m.objects[objectPath] = object
	m.mu.Unlock()
	return object, nil
}

// Delete removes one object; deleting a missing path is not an error.
func (m *MemoryStore) Delete(ctx context.Context, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, objectPath)
	m.mu.Unlock()
	return nil
}

// Has reports whether an object is stored; test helper.
func (m *MemoryStore) Has(objectPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[objectPath]
	return ok
}

var _ Uploader = (*MemoryStore)(nil)
