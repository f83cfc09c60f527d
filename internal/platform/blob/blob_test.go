package blob

import (
	"context"
	"errors"
	"strings"
	"testing"

	platformerrors "github.com/xbiplob/WeFriend/internal/platform/errors"
)

func TestUploadStoresAllowedImage(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore("https://cdn.example.test")
	object, err := store.Upload(context.Background(), []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(object.URL, "https://cdn.example.test/images/") {
		t.Fatalf("unexpected url %q", object.URL)
	}
	if !strings.HasSuffix(object.Path, ".png") {
		t.Fatalf("expected png extension, got %q", object.Path)
	}
	if object.Size != int64(len("png-bytes")) {
		t.Fatalf("unexpected size %d", object.Size)
	}
	if !store.Has(object.Path) {
		t.Fatal("expected object to be stored")
	}
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore("https://cdn.example.test")
	_, err := store.Upload(context.Background(), []byte("%PDF-"), "application/pdf")
	if !errors.Is(err, platformerrors.New(platformerrors.CodeBlobInvalidType, "")) {
		t.Fatalf("expected invalid type error, got %v", err)
	}
}

func TestUploadRejectsOversizedImage(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore("https://cdn.example.test")
	oversized := make([]byte, MaxUploadBytes+1)
	_, err := store.Upload(context.Background(), oversized, "image/jpeg")
	if !errors.Is(err, platformerrors.New(platformerrors.CodeBlobTooLarge, "")) {
		t.Fatalf("expected too large error, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore("https://cdn.example.test")
	object, err := store.Upload(context.Background(), []byte("gif"), "image/gif")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if err := store.Delete(context.Background(), object.Path); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(context.Background(), object.Path); err != nil {
		t.Fatalf("redundant delete: %v", err)
	}
	if store.Has(object.Path) {
		t.Fatal("expected object gone after delete")
	}
}
