package itemsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore is the hosted blob storage for item images.
type BlobStore interface {
	Upload(ctx context.Context, path string, content []byte, contentType string) error
	PublicURL(path string) string
}

// Uploader turns local image references into public URLs.
type Uploader struct {
	blobs  BlobStore
	logger *slog.Logger
	newID  func() string
}

// NewUploader creates an uploader that stores images in blobs.
func NewUploader(blobs BlobStore, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		blobs:  blobs,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
}

// Upload stores the file behind ref under the owner's folder and returns its
// public URL.
func (u *Uploader) Upload(ctx context.Context, ownerID, ref string) (string, error) {
	path := localPath(ref)

	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %w", ErrUploadFailed, path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	key := ownerID + "/" + u.newID() + ext
	if err := u.blobs.Upload(ctx, key, content, contentTypeFor(ext)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	u.logger.Info("image uploaded", "file", path, "key", key, "bytes", len(content))
	return u.blobs.PublicURL(key), nil
}

// Resolve uploads ref and returns the public URL, or ref itself when the
// upload fails.
func (u *Uploader) Resolve(ctx context.Context, ownerID, ref string) string {
	url, err := u.Upload(ctx, ownerID, ref)
	if err != nil {
		u.logger.Warn("keeping local image reference", "ref", ref, "error", err)
		return ref
	}
	return url
}

func localPath(ref string) string {
	return strings.TrimPrefix(ref, "file://")
}

// imageTypes lists extensions whose content type is not "image/<ext>".
var imageTypes = map[string]string{
	".jpg": "image/jpeg",
	".tif": "image/tiff",
	".svg": "image/svg+xml",
}

// contentTypeFor derives the upload content type from a file extension:
// "image/<ext>" unless imageTypes says otherwise.
func contentTypeFor(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" || ext == "." {
		return "application/octet-stream"
	}
	if t, ok := imageTypes[ext]; ok {
		return t
	}
	return "image/" + strings.TrimPrefix(ext, ".")
}
