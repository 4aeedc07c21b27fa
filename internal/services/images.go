package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	folderItems    = "items"
	folderProfiles = "profiles"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ObjectStore is the subset of object storage the services write to.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Upload is an image received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// ImageStore validates uploaded images and stores them under random keys.
type ImageStore struct {
	objects  ObjectStore
	prefix   string
	maxBytes int64
	newName  func() string
}

// NewImageStore constructs an ImageStore. Stored images are addressed by
// publicPrefix + "/" + key.
func NewImageStore(objects ObjectStore, publicPrefix string, maxBytes int64) *ImageStore {
	return &ImageStore{
		objects:  objects,
		prefix:   "/" + strings.Trim(publicPrefix, "/"),
		maxBytes: maxBytes,
		newName:  uuid.NewString,
	}
}

// Save stores upload in folder and returns its public path.
func (s *ImageStore) Save(ctx context.Context, folder string, upload Upload) (string, error) {
	if len(upload.Data) == 0 {
		return "", newError(KindInvalidArgument, "image is empty")
	}
	if s.maxBytes > 0 && int64(len(upload.Data)) > s.maxBytes {
		return "", newError(KindInvalidArgument, fmt.Sprintf("image exceeds %d bytes", s.maxBytes))
	}

	contentType := http.DetectContentType(upload.Data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", newError(KindInvalidArgument, "unsupported image type")
	}

	key := folder + "/" + s.newName() + ext
	if err := s.objects.Put(ctx, key, bytes.NewReader(upload.Data), int64(len(upload.Data)), contentType); err != nil {
		return "", internalError("failed to store image", err)
	}
	return s.prefix + "/" + key, nil
}

// Remove deletes the object behind a public path produced by Save. Paths
// outside the prefix are ignored.
func (s *ImageStore) Remove(ctx context.Context, publicPath string) error {
	key, ok := s.Key(publicPath)
	if !ok {
		return nil
	}
	return s.objects.Delete(ctx, key)
}

// Key returns the object key for a public path.
func (s *ImageStore) Key(publicPath string) (string, bool) {
	key, ok := strings.CutPrefix(publicPath, s.prefix+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// Prefix returns the public path prefix, with a leading slash and no
// trailing slash.
func (s *ImageStore) Prefix() string {
	return s.prefix
}
