package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jo-hoe/refshelf/internal/backend/imaging"
	"github.com/jo-hoe/refshelf/internal/core"
	"github.com/redis/go-redis/v9"
)

const thumbnailKeyPrefix = "thumb:"

// ThumbnailCache renders grid thumbnails and keeps them in Redis.
type ThumbnailCache struct {
	client  *redis.Client
	fetcher core.ImageFetcher
	width   int
	ttl     time.Duration
}

func NewThumbnailCache(client *redis.Client, fetcher core.ImageFetcher, width int, ttl time.Duration) *ThumbnailCache {
	return &ThumbnailCache{client: client, fetcher: fetcher, width: width, ttl: ttl}
}

// thumbnailKey changes whenever the image of an entry is replaced.
func thumbnailKey(entryID, imagePath string, width int) string {
	return thumbnailKeyPrefix + entryID + ":" + strconv.Itoa(width) + ":" + imagePath
}

// Get returns the PNG thumbnail of the image at imageURL.
func (c *ThumbnailCache) Get(ctx context.Context, entryID, imagePath, imageURL string) ([]byte, error) {
	key := thumbnailKey(entryID, imagePath, c.width)
	if c.client != nil {
		cached, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redis.Nil) {
			slog.Warn("ThumbnailCache: failed to read cache", "entry_id", entryID, "error", err)
		}
	}

	original, err := c.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	thumbnail, err := imaging.ExecuteCommands(original, []imaging.CommandConfig{
		{Name: imaging.PngConverterCommandName},
		{Name: imaging.ThumbnailCommandName, Params: map[string]any{"width": c.width}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate thumbnail: %w", err)
	}

	if c.client != nil {
		if err := c.client.Set(ctx, key, thumbnail, c.ttl).Err(); err != nil {
			slog.Warn("ThumbnailCache: failed to store thumbnail", "entry_id", entryID, "error", err)
		}
	}
	return thumbnail, nil
}
