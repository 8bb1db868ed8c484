package backend

import (
	"github.com/jo-hoe/refshelf/internal/backend/auth"
	"github.com/jo-hoe/refshelf/internal/backend/blobstore"
	"github.com/jo-hoe/refshelf/internal/backend/database"
)

// Client bundles the hosted services the application talks to: sessions,
// the document store with its live queries, and blob storage.
type Client struct {
	Auth      *auth.Service
	Documents database.DatabaseService
	Blobs     blobstore.BlobStore
}

func NewClient(authService *auth.Service, documents database.DatabaseService, blobs blobstore.BlobStore) *Client {
	return &Client{
		Auth:      authService,
		Documents: documents,
		Blobs:     blobs,
	}
}

func (c *Client) Close() error {
	return c.Documents.Close()
}
