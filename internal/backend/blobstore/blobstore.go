package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

var ErrBlobNotFound = errors.New("blob not found")

// BlobStore holds uploaded image files addressed by a slash separated path.
type BlobStore interface {
	Upload(ctx context.Context, blobPath string, data []byte, contentType string) error
	// DownloadURL resolves the URL under which a stored blob can be retrieved.
	DownloadURL(ctx context.Context, blobPath string) (string, error)
}

type Options struct {
	Type      string
	Path      string
	Folder    string
	PublicURL string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
}

func NewBlobStore(options Options) (BlobStore, error) {
	switch options.Type {
	case "", "local":
		return NewLocalStore(options.Path, options.PublicURL)
	case "cloudinary":
		return NewCloudinaryStore(options.CloudinaryCloudName, options.CloudinaryAPIKey, options.CloudinaryAPISecret, options.Folder)
	default:
		return nil, fmt.Errorf("unsupported blob store type: %s", options.Type)
	}
}

// ObjectName derives the storage path of an uploaded file: the upload time in
// unix milliseconds joined with the file's base name. Two uploads of the same
// file name within one millisecond collide.
func ObjectName(now time.Time, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = "image"
	}
	return fmt.Sprintf("images/%d_%s", now.UnixMilli(), base)
}
