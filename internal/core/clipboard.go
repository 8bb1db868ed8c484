package core

import "context"

// Clipboard is the system clipboard of the machine running the server.
type Clipboard interface {
	WriteImage(ctx context.Context, png []byte) error
	WriteText(ctx context.Context, text string) error
}

// ImageFetcher downloads the bytes behind an image URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
