package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string

	// secure URLs returned by uploads, keyed by blob path
	urls sync.Map
}

func NewCloudinaryStore(cloudName, apiKey, apiSecret, folder string) (*CloudinaryStore, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("cloudinary blob store requires cloud name, api key and api secret")
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: strings.Trim(folder, "/")}, nil
}

// publicID strips the extension, Cloudinary keeps the format separately.
func (s *CloudinaryStore) publicID(blobPath string) string {
	id := strings.TrimSuffix(blobPath, path.Ext(blobPath))
	if s.folder == "" {
		return id
	}
	return s.folder + "/" + id
}

func (s *CloudinaryStore) Upload(ctx context.Context, blobPath string, data []byte, _ string) error {
	result, err := s.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     s.publicID(blobPath),
		ResourceType: "image",
	})
	if err != nil {
		return fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("failed to upload to Cloudinary: %s", result.Error.Message)
	}
	s.urls.Store(blobPath, result.SecureURL)
	return nil
}

func (s *CloudinaryStore) DownloadURL(ctx context.Context, blobPath string) (string, error) {
	if cached, ok := s.urls.Load(blobPath); ok {
		return cached.(string), nil
	}

	asset, err := s.cld.Admin.Asset(ctx, admin.AssetParams{PublicID: s.publicID(blobPath)})
	if err != nil {
		return "", fmt.Errorf("failed to resolve Cloudinary asset: %w", err)
	}
	if asset.Error.Message != "" || asset.SecureURL == "" {
		return "", fmt.Errorf("%w: %s", ErrBlobNotFound, blobPath)
	}
	s.urls.Store(blobPath, asset.SecureURL)
	return asset.SecureURL, nil
}
